package export

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Embedder is the native surface of a speaker model: a batch of waveforms
// in, embeddings out. Depending on the model the output is [batch, 1, emb]
// or [batch, emb].
type Embedder[B tensor.Backend] interface {
	EncodeBatch(wavs *tensor.Tensor[B]) *tensor.Tensor[B]
	SampleRate() int
}

// Wrapper adapts an Embedder to a fixed contract: [batch, samples] in,
// [batch, emb] out. It holds no state besides the shared model.
type Wrapper[B tensor.Backend] struct {
	model Embedder[B]
}

// Wrap returns a shape-normalizing wrapper around model.
func Wrap[B tensor.Backend](model Embedder[B]) *Wrapper[B] {
	return &Wrapper[B]{model: model}
}

// Model returns the wrapped model.
func (w *Wrapper[B]) Model() Embedder[B] {
	return w.model
}

// SampleRate returns the model's native sample rate.
func (w *Wrapper[B]) SampleRate() int {
	return w.model.SampleRate()
}

// Forward runs the model and normalizes its output to rank 2.
func (w *Wrapper[B]) Forward(wavs *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	out := w.model.EncodeBatch(wavs)
	if _, err := Normalize(out.Shape()); err != nil {
		return nil, err
	}
	if len(out.Shape()) == 3 {
		out = out.Squeeze(1)
	}
	return out, nil
}

// Normalize is the output shape rule of Wrapper.Forward:
//
//	[B, 1, E] -> [B, E]
//	[B, E]    -> [B, E]
//
// Anything else is ErrUnexpectedRank. Normalize is idempotent.
func Normalize(shape tensor.Shape) (tensor.Shape, error) {
	switch len(shape) {
	case 2:
		return shape.Clone(), nil
	case 3:
		if shape[1] != 1 {
			return nil, fmt.Errorf("%w: %v has %d in dim 1, want 1", ErrUnexpectedRank, shape, shape[1])
		}
		return tensor.Shape{shape[0], shape[2]}, nil
	default:
		return nil, fmt.Errorf("%w: rank %d output %v", ErrUnexpectedRank, len(shape), shape)
	}
}
