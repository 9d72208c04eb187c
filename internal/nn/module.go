// Package nn implements the neural network modules used by the speaker
// encoder.
//
// Modules are generic over the tensor backend, so the same module code runs
// eagerly on the CPU backend or records itself through a tracing backend.
//
//   - Module: Forward plus Parameters
//   - Parameter: named weight, bias or buffer
//   - Conv1d, BatchNorm1d, Dropout: layers
//   - StateDict / LoadStateDict: named tensor exchange with checkpoints
package nn

import (
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	// Parameters returns all parameters and buffers of this module,
	// including those of nested modules.
	Parameters() []*Parameter[B]
}

// Trainable is implemented by modules whose forward pass differs between
// training and inference.
type Trainable interface {
	Train()
	Eval()
	Training() bool
}

// Mode holds the train/eval flag. Embed it to implement Trainable.
// The zero value is eval mode.
type Mode struct {
	training bool
}

// Train switches to training behavior.
func (m *Mode) Train() { m.training = true }

// Eval switches to inference behavior.
func (m *Mode) Eval() { m.training = false }

// Training reports whether the module is in training mode.
func (m *Mode) Training() bool { return m.training }

// Join builds a dotted parameter name, skipping an empty prefix.
//
//	Join("blocks.0", "conv") == "blocks.0.conv"
//	Join("", "fc") == "fc"
func Join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
