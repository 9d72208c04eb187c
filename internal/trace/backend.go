// Package trace records tensor computations into a graph and freezes it.
//
// Backend wraps any tensor.Backend and appends every call to a Tape while
// recording is on. Running a module once over the recording backend yields
// the exact sequence of operations that one input exercises. Freeze turns
// that sequence into a Graph whose only free value is the input; every
// value not derived from the input becomes a constant.
//
//	backend := trace.New(cpu.New())
//	model := build(backend)
//
//	backend.Tape().StartRecording()
//	out := model.Forward(x)
//	backend.Tape().StopRecording()
//
//	graph, err := trace.Freeze(backend.Tape(), x.Raw(), out.Raw(), trace.IO{Input: "waveform", Output: "embedding"})
//
// The graph is valid only for inputs of the traced shape.
package trace

import (
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Backend wraps a tensor.Backend and records operations on a Tape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Backend[B tensor.Backend] struct {
	inner B
	tape  *Tape
}

// New creates a recording backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return &Backend[B]{
		inner: backend,
		tape:  NewTape(),
	}
}

// Tape returns the tape for manual control.
func (b *Backend[B]) Tape() *Tape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *Backend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *Backend[B]) Name() string {
	return "Trace(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *Backend[B]) Device() tensor.Device {
	return b.inner.Device()
}

func (b *Backend[B]) record(op Op, out *tensor.RawTensor, attrs Attrs, inputs ...*tensor.RawTensor) *tensor.RawTensor {
	if b.tape.IsRecording() {
		b.tape.Record(Node{Op: op, Inputs: inputs, Output: out, Attrs: attrs})
	}
	return out
}

// Add performs element-wise addition and records the operation.
func (b *Backend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpAdd, b.inner.Add(x, y), Attrs{}, x, y)
}

// Sub performs element-wise subtraction and records the operation.
func (b *Backend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpSub, b.inner.Sub(x, y), Attrs{}, x, y)
}

// Mul performs element-wise multiplication and records the operation.
func (b *Backend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpMul, b.inner.Mul(x, y), Attrs{}, x, y)
}

// Div performs element-wise division and records the operation.
func (b *Backend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpDiv, b.inner.Div(x, y), Attrs{}, x, y)
}

// MatMul performs matrix multiplication and records the operation.
func (b *Backend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpMatMul, b.inner.MatMul(x, y), Attrs{}, x, y)
}

// Conv1D performs 1D convolution and records the operation.
func (b *Backend[B]) Conv1D(input, kernel *tensor.RawTensor, stride, padding, dilation int) *tensor.RawTensor {
	out := b.inner.Conv1D(input, kernel, stride, padding, dilation)
	return b.record(OpConv1D, out, Attrs{Stride: stride, Padding: padding, Dilation: dilation}, input, kernel)
}

// Reshape reshapes a tensor and records the resolved target shape, so an
// inferred -1 never reaches the graph.
func (b *Backend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Reshape(t, newShape)
	return b.record(OpReshape, out, Attrs{Shape: out.Shape().Clone()}, t)
}

// Transpose permutes dimensions and records the operation.
func (b *Backend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	out := b.inner.Transpose(t, axes...)
	return b.record(OpTranspose, out, Attrs{Axes: append([]int(nil), axes...)}, t)
}

// Squeeze removes a size-1 dimension and records the operation.
func (b *Backend[B]) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.record(OpSqueeze, b.inner.Squeeze(x, dim), Attrs{Dim: dim}, x)
}

// Unsqueeze inserts a size-1 dimension and records the operation.
func (b *Backend[B]) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.record(OpUnsqueeze, b.inner.Unsqueeze(x, dim), Attrs{Dim: dim}, x)
}

// Cat concatenates tensors and records the operation.
func (b *Backend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	inputs := append([]*tensor.RawTensor(nil), tensors...)
	return b.record(OpCat, b.inner.Cat(tensors, dim), Attrs{Dim: dim}, inputs...)
}

// Narrow slices dim and records the operation.
func (b *Backend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	out := b.inner.Narrow(x, dim, start, length)
	return b.record(OpNarrow, out, Attrs{Dim: dim, Start: start, Length: length}, x)
}

// AddScalar adds a scalar and records the operation.
func (b *Backend[B]) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return b.record(OpAddScalar, b.inner.AddScalar(x, scalar), Attrs{Scalar: scalar}, x)
}

// MulScalar multiplies by a scalar and records the operation.
func (b *Backend[B]) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return b.record(OpMulScalar, b.inner.MulScalar(x, scalar), Attrs{Scalar: scalar}, x)
}

// Exp computes e^x and records the operation.
func (b *Backend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpExp, b.inner.Exp(x), Attrs{}, x)
}

// Log computes ln(x) and records the operation.
func (b *Backend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpLog, b.inner.Log(x), Attrs{}, x)
}

// Sqrt computes √x and records the operation.
func (b *Backend[B]) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpSqrt, b.inner.Sqrt(x), Attrs{}, x)
}

// Rsqrt computes 1/√x and records the operation.
func (b *Backend[B]) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpRsqrt, b.inner.Rsqrt(x), Attrs{}, x)
}

// ReLU applies max(0, x) and records the operation.
func (b *Backend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpReLU, b.inner.ReLU(x), Attrs{}, x)
}

// Sigmoid applies the logistic function and records the operation.
func (b *Backend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpSigmoid, b.inner.Sigmoid(x), Attrs{}, x)
}

// Tanh applies tanh and records the operation.
func (b *Backend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(OpTanh, b.inner.Tanh(x), Attrs{}, x)
}

// Softmax normalizes along dim and records the operation.
func (b *Backend[B]) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.record(OpSoftmax, b.inner.Softmax(x, dim), Attrs{Dim: dim}, x)
}

// SumDim sums along dim and records the operation.
func (b *Backend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return b.record(OpSumDim, b.inner.SumDim(x, dim, keepDim), Attrs{Dim: dim, KeepDim: keepDim}, x)
}

// MeanDim averages along dim and records the operation.
func (b *Backend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return b.record(OpMeanDim, b.inner.MeanDim(x, dim, keepDim), Attrs{Dim: dim, KeepDim: keepDim}, x)
}

var _ tensor.Backend = (*Backend[tensor.Backend])(nil)
