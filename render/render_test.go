package render

import (
	"testing"

	"code.hybscloud.com/tesi/graph"
	"code.hybscloud.com/tesi/processor"
)

// gainProc scales every input sample by Gain. It implements Starter and
// Stopper so tests can observe the lifecycle hooks firing.
type gainProc struct {
	Gain         float32
	started      int
	stopped      int
	finishAfter  int // ticks; 0 means never finish
	ticksDone    int
	tailFrames   *uint32
}

func (p *gainProc) Initialize(float64, int) {}
func (p *gainProc) Start()                  { p.started++ }
func (p *gainProc) Stop()                   { p.stopped++ }
func (p *gainProc) Reset()                  { p.ticksDone = 0 }

func (p *gainProc) Process(ctx *processor.Context) processor.Processed {
	for ch := 0; ch < ctx.AudioOutputs[0].NumChannels(); ch++ {
		in := ctx.AudioInputs[0].Channel(ch)[:ctx.NumFrames]
		out := ctx.AudioOutputs[0].Channel(ch)[:ctx.NumFrames]
		for i := range out {
			out[i] = in[i] * p.Gain
		}
	}
	p.ticksDone++
	if p.finishAfter != 0 && p.ticksDone >= p.finishAfter {
		return processor.Processed{Status: processor.Finished, TailFrames: p.tailFrames}
	}
	return processor.Processed{Status: processor.Continue}
}

func newMonoEditor(t *testing.T, numWorkers int) *graph.Editor {
	t.Helper()
	return graph.NewEditor(graph.Options{
		NumInputChannels:  1,
		NumOutputChannels: 1,
		NumWorkers:        numWorkers,
		MaxNumFrames:      64,
		SampleRate:        48000,
	})
}

func TestRenderTickAppliesGainSequentially(t *testing.T) {
	ed := newMonoEditor(t, 0)
	gain := &gainProc{Gain: 0.5}
	node := ed.AddNode(gain, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 1),
		processor.AudioPort("out", processor.DirectionOutput, 1),
	})
	if _, err := ed.AddEdge(ed.RootInput(), 0, node, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := ed.AddEdge(node, 0, ed.RootOutput(), 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	r, err := New(ed, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if gain.started != 1 {
		t.Fatalf("expected Start to fire once on first commit, got %d", gain.started)
	}

	in := [][]float32{{1, 2, 3, 4}}
	out := [][]float32{make([]float32, 4)}
	r.RenderTick(in, out, 4)

	want := []float32{0.5, 1, 1.5, 2}
	for i, w := range want {
		if out[0][i] != w {
			t.Fatalf("out[%d] = %v, want %v", i, out[0][i], w)
		}
	}
}

func TestRenderTickSequentialAndWorkersAgree(t *testing.T) {
	build := func(numWorkers int) (*Renderer, [][]float32) {
		ed := newMonoEditor(t, numWorkers)
		a := &gainProc{Gain: 2}
		b := &gainProc{Gain: 3}
		na := ed.AddNode(a, []processor.Port{
			processor.AudioPort("in", processor.DirectionInput, 1),
			processor.AudioPort("out", processor.DirectionOutput, 1),
		})
		nb := ed.AddNode(b, []processor.Port{
			processor.AudioPort("in", processor.DirectionInput, 1),
			processor.AudioPort("out", processor.DirectionOutput, 1),
		})
		if _, err := ed.AddEdge(ed.RootInput(), 0, na, 0); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		if _, err := ed.AddEdge(na, 0, nb, 0); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		if _, err := ed.AddEdge(nb, 0, ed.RootOutput(), 0); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		r, err := New(ed, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		out := [][]float32{make([]float32, 4)}
		return r, out
	}

	in := [][]float32{{1, 2, 3, 4}}

	rSeq, outSeq := build(0)
	rSeq.RenderTick(in, outSeq, 4)

	rPar, outPar := build(4)
	rPar.RenderTick(in, outPar, 4)

	for i := range outSeq[0] {
		if outSeq[0][i] != outPar[0][i] {
			t.Fatalf("sequential and worker-pool outputs diverge at %d: %v vs %v", i, outSeq[0][i], outPar[0][i])
		}
	}
}

func TestRenderTickFinishedNodeIsRemovedOnNextCommit(t *testing.T) {
	ed := newMonoEditor(t, 0)
	gain := &gainProc{Gain: 1, finishAfter: 1}
	node := ed.AddNode(gain, []processor.Port{
		processor.AudioPort("in", processor.DirectionInput, 1),
		processor.AudioPort("out", processor.DirectionOutput, 1),
	})
	if _, err := ed.AddEdge(ed.RootInput(), 0, node, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := ed.AddEdge(node, 0, ed.RootOutput(), 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	r, err := New(ed, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := [][]float32{{1, 2, 3, 4}}
	out := [][]float32{make([]float32, 4)}
	r.RenderTick(in, out, 4) // gain finishes, posts RemoveNode into the inbox

	ed.CommitChanges()
	if err := r.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if gain.stopped != 1 {
		t.Fatalf("expected Stop to fire once the node dropped out of the recompiled Plan, got %d", gain.stopped)
	}

	snap := ed.Snapshot()
	for _, n := range snap.Nodes {
		if n.ID == node.ID() && n.Active {
			t.Fatalf("expected node to be deactivated after Finished with no TailFrames")
		}
	}
}
