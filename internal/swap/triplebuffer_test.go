package swap

import "testing"

func TestTripleBufferReadSeesLatestWrite(t *testing.T) {
	tb := New(0)
	tb.Write(1)
	tb.Write(2)

	g := tb.Read()
	if got := *g.Value(); got != 2 {
		t.Fatalf("Read().Value() = %d, want 2", got)
	}
	g.Release()
}

func TestTripleBufferWriteNeverBlocksOnHeldGuard(t *testing.T) {
	tb := New(0)
	tb.Write(1)
	g := tb.Read()
	defer g.Release()

	tb.Write(2)
	tb.Write(3)

	if got := *g.Value(); got != 1 {
		t.Fatalf("held guard observed value %d after writes, want 1 (unchanged)", got)
	}
}

func TestTripleBufferReadPanicsOnDoubleRead(t *testing.T) {
	tb := New(0)
	tb.Write(1)
	g := tb.Read()
	defer g.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("second Read before Release should have panicked")
		}
	}()
	tb.Read()
}
