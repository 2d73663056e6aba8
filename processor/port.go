// Package processor defines the contract a graph node's processing unit
// implements, and the port declarations that describe its audio/event
// connection surface.
//
// Grounded on original_source/crates/graph/src/proc.rs (the Processor
// trait) and crates/processor/src/port.rs (Port), deliberately the lean
// versions: the richer editor/activate/GUI-capable processor trait in
// crates/processor/src/processor.rs belongs to parameter automation and
// plugin editor machinery, out of scope per spec.md §1.
package processor

// Kind distinguishes an audio-sample port from an event (control-message)
// port.
type Kind int

const (
	KindAudio Kind = iota
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Direction distinguishes an input port (the node consumes it) from an
// output port (the node produces it).
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Port describes one connection point on a node.
type Port struct {
	Name      string
	Kind      Kind
	Direction Direction
	// NumChannels is meaningful only for Kind == KindAudio; it is the
	// channel count of the audio bus this port carries (1 = mono,
	// 2 = stereo, and so on).
	NumChannels int
}

// Common audio channel layouts, named the way the original's port.rs
// named its layout constants.
var (
	Mono        = Port{Kind: KindAudio, NumChannels: 1}
	Stereo      = Port{Kind: KindAudio, NumChannels: 2}
	Surround510 = Port{Kind: KindAudio, NumChannels: 5}
	Surround51  = Port{Kind: KindAudio, NumChannels: 6}
	Surround71  = Port{Kind: KindAudio, NumChannels: 8}
)

// AudioPort returns an audio Port with the given name, direction, and
// channel count.
func AudioPort(name string, dir Direction, numChannels int) Port {
	return Port{Name: name, Kind: KindAudio, Direction: dir, NumChannels: numChannels}
}

// EventPort returns an event Port with the given name and direction.
func EventPort(name string, dir Direction) Port {
	return Port{Name: name, Kind: KindEvent, Direction: dir}
}

// Compatible reports whether an output port may connect to an input port:
// same Kind, and for audio ports, the same channel count (spec.md §7,
// InvalidPortType).
func Compatible(output, input Port) bool {
	if output.Direction != DirectionOutput || input.Direction != DirectionInput {
		return false
	}
	if output.Kind != input.Kind {
		return false
	}
	if output.Kind == KindAudio && output.NumChannels != input.NumChannels {
		return false
	}
	return true
}
