package trace

import (
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Tape records backend calls in execution order while recording is on.
//
//	tape := backend.Tape()
//	tape.StartRecording()
//	out := model.Forward(x)
//	tape.StopRecording()
type Tape struct {
	nodes     []Node
	names     map[*tensor.RawTensor]string
	recording bool
}

// NewTape creates an empty tape.
func NewTape() *Tape {
	return &Tape{
		nodes: make([]Node, 0, 64),
		names: make(map[*tensor.RawTensor]string),
	}
}

// StartRecording enables operation recording.
func (t *Tape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *Tape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *Tape) IsRecording() bool {
	return t.recording
}

// Record appends a node if the tape is recording.
func (t *Tape) Record(n Node) {
	if t.recording {
		t.nodes = append(t.nodes, n)
	}
}

// NameConstant attaches a stable name to a leaf tensor, typically a
// parameter such as "blocks.0.conv.weight". Named leaves keep their name
// when they end up in a frozen graph.
func (t *Tape) NameConstant(raw *tensor.RawTensor, name string) {
	t.names[raw] = name
}

// Clear drops all recorded nodes. Names and recording state are kept.
func (t *Tape) Clear() {
	t.nodes = t.nodes[:0]
}

// Nodes returns the recorded nodes in execution order.
func (t *Tape) Nodes() []Node {
	return t.nodes
}

// NumOps returns the number of recorded operations.
func (t *Tape) NumOps() int {
	return len(t.nodes)
}
