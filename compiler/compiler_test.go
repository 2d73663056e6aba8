package compiler

import (
	"testing"

	"code.hybscloud.com/tesi/graph"
	"code.hybscloud.com/tesi/processor"
)

type passthroughProc struct{}

func (passthroughProc) Initialize(float64, int) {}
func (passthroughProc) Process(ctx *processor.Context) processor.Processed {
	for ch := 0; ch < ctx.AudioOutputs[0].NumChannels(); ch++ {
		copy(ctx.AudioOutputs[0].Channel(ch), ctx.AudioInputs[0].Channel(ch))
	}
	return processor.Processed{Status: processor.Continue}
}
func (passthroughProc) Reset() {}

func newTestEditor(t *testing.T) *graph.Editor {
	t.Helper()
	return graph.NewEditor(graph.Options{
		NumInputChannels:  2,
		NumOutputChannels: 2,
		NumWorkers:        0,
		MaxNumFrames:      128,
		SampleRate:        48000,
	})
}

func TestCompileLinearChainOrdersRootInputBeforeRootOutput(t *testing.T) {
	ed := newTestEditor(t)
	gain := ed.AddNode(passthroughProc{}, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 2),
		processor.AudioPort("out", processor.DirectionOutput, 2),
	})
	if _, err := ed.AddEdge(ed.RootInput(), 0, gain, 0); err != nil {
		t.Fatalf("AddEdge root->gain: %v", err)
	}
	if _, err := ed.AddEdge(gain, 0, ed.RootOutput(), 0); err != nil {
		t.Fatalf("AddEdge gain->root: %v", err)
	}

	plan, err := Compile(ed.Snapshot())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(plan.Order) != 3 {
		t.Fatalf("expected 3 scheduled nodes, got %d", len(plan.Order))
	}
	rootInPos := plan.RootInput
	rootOutPos := plan.RootOutput
	gainPos := -1
	for i, n := range plan.Order {
		if n.ID == gain.ID() {
			gainPos = i
		}
	}
	if gainPos < 0 {
		t.Fatalf("gain node missing from plan")
	}
	if !(rootInPos < gainPos && gainPos < rootOutPos) {
		t.Fatalf("expected order rootInput(%d) < gain(%d) < rootOutput(%d)", rootInPos, gainPos, rootOutPos)
	}
}

func TestCompileSharesBufferAcrossDisjointLiveRanges(t *testing.T) {
	ed := newTestEditor(t)
	a := ed.AddNode(passthroughProc{}, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 2),
		processor.AudioPort("out", processor.DirectionOutput, 2),
	})
	b := ed.AddNode(passthroughProc{}, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 2),
		processor.AudioPort("out", processor.DirectionOutput, 2),
	})
	if _, err := ed.AddEdge(ed.RootInput(), 0, a, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := ed.AddEdge(a, 0, b, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := ed.AddEdge(b, 0, ed.RootOutput(), 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	plan, err := Compile(ed.Snapshot())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// In a strictly linear chain at most two buses are live at once (a
	// node's input and its output): rootInput's output is freed once node a
	// has read it, so b's output reuses those same blocks.
	if got := plan.AudioArena; got == nil {
		t.Fatalf("expected an audio arena")
	}
	aIn := plan.Order[plan.IndexByID[a.ID()]].AudioInputs[0]
	bOut := plan.Order[plan.IndexByID[b.ID()]].AudioOutputs[0]
	shared := 0
	for i := 0; i < bOut.NumChannels(); i++ {
		for j := 0; j < aIn.NumChannels(); j++ {
			if &bOut.Channel(i)[0] == &aIn.Channel(j)[0] {
				shared++
			}
		}
	}
	if shared != bOut.NumChannels() {
		t.Fatalf("expected b's output to reuse all %d blocks of a's input, %d shared", bOut.NumChannels(), shared)
	}
}

func TestCompileAcceptsDisconnectedGraphWithoutError(t *testing.T) {
	ed := newTestEditor(t)
	orphan := ed.AddNode(passthroughProc{}, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 2),
		processor.AudioPort("out", processor.DirectionOutput, 2),
	})
	_ = orphan

	plan, err := Compile(ed.Snapshot())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// An unconnected node is still scheduled (it is active); its ports just
	// fall back to silence / standalone buffers rather than shared ones.
	found := false
	for _, n := range plan.Order {
		if n.ID == orphan.ID() {
			found = true
			if n.AudioInputs[0].Bound() {
				t.Fatalf("expected orphan's input to be unbound (constant-value silence)")
			}
			if v, ok := n.AudioInputs[0].ConstantValue(); !ok || v != 0 {
				t.Fatalf("expected constant-value silence on orphan input, got %v, %v", v, ok)
			}
		}
	}
	if !found {
		t.Fatalf("orphan node missing from plan")
	}
}

func TestCompileInactiveNodeExcludedFromPlan(t *testing.T) {
	ed := newTestEditor(t)
	gain := ed.AddNode(passthroughProc{}, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 2),
		processor.AudioPort("out", processor.DirectionOutput, 2),
	})
	ed.MarkActive(gain.ID(), false)

	plan, err := Compile(ed.Snapshot())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, n := range plan.Order {
		if n.ID == gain.ID() {
			t.Fatalf("deactivated node must not appear in the plan")
		}
	}
}
