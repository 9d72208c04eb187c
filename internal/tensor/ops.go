package tensor

import "fmt"

// Add performs element-wise addition with broadcasting.
func (t *Tensor[B]) Add(other *Tensor[B]) *Tensor[B] {
	return t.wrap(t.backend.Add(t.raw, other.raw))
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[B]) Sub(other *Tensor[B]) *Tensor[B] {
	return t.wrap(t.backend.Sub(t.raw, other.raw))
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[B]) Mul(other *Tensor[B]) *Tensor[B] {
	return t.wrap(t.backend.Mul(t.raw, other.raw))
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[B]) Div(other *Tensor[B]) *Tensor[B] {
	return t.wrap(t.backend.Div(t.raw, other.raw))
}

// MatMul performs (batched) matrix multiplication.
//
//	[M, K] @ [K, N]       → [M, N]
//	[M, K] @ [B, K, N]    → [B, M, N]
//	[B, M, K] @ [B, K, N] → [B, M, N]
func (t *Tensor[B]) MatMul(other *Tensor[B]) *Tensor[B] {
	return t.wrap(t.backend.MatMul(t.raw, other.raw))
}

// Conv1D convolves t [N, C, L] with kernel [O, C, K].
func (t *Tensor[B]) Conv1D(kernel *Tensor[B], stride, padding, dilation int) *Tensor[B] {
	return t.wrap(t.backend.Conv1D(t.raw, kernel.raw, stride, padding, dilation))
}

// Reshape returns a tensor with the same data but different shape.
func (t *Tensor[B]) Reshape(newShape ...int) *Tensor[B] {
	return t.wrap(t.backend.Reshape(t.raw, Shape(newShape)))
}

// Transpose permutes dimensions. With no axes, all dimensions are reversed.
func (t *Tensor[B]) Transpose(axes ...int) *Tensor[B] {
	if len(axes) == 0 {
		n := len(t.Shape())
		axes = make([]int, n)
		for i := range axes {
			axes[i] = n - 1 - i
		}
	}
	return t.wrap(t.backend.Transpose(t.raw, axes...))
}

// Squeeze removes dimension dim, which must have size 1.
func (t *Tensor[B]) Squeeze(dim int) *Tensor[B] {
	return t.wrap(t.backend.Squeeze(t.raw, t.Shape().NormalizeDim(dim)))
}

// Unsqueeze inserts a dimension of size 1 at dim.
func (t *Tensor[B]) Unsqueeze(dim int) *Tensor[B] {
	if dim < 0 {
		dim += len(t.Shape()) + 1
	}
	return t.wrap(t.backend.Unsqueeze(t.raw, dim))
}

// Narrow returns length entries of dim starting at start.
func (t *Tensor[B]) Narrow(dim, start, length int) *Tensor[B] {
	return t.wrap(t.backend.Narrow(t.raw, t.Shape().NormalizeDim(dim), start, length))
}

// Chunk splits dim into n equal parts. The size of dim must be divisible by n.
func (t *Tensor[B]) Chunk(n, dim int) []*Tensor[B] {
	dim = t.Shape().NormalizeDim(dim)
	size := t.Shape()[dim]
	if n <= 0 || size%n != 0 {
		panic(fmt.Sprintf("chunk: cannot split dimension %d of %v into %d parts", dim, t.Shape(), n))
	}
	step := size / n
	parts := make([]*Tensor[B], n)
	for i := range parts {
		parts[i] = t.Narrow(dim, i*step, step)
	}
	return parts
}

// AddScalar adds a scalar to every element.
func (t *Tensor[B]) AddScalar(s float32) *Tensor[B] {
	return t.wrap(t.backend.AddScalar(t.raw, s))
}

// MulScalar multiplies every element by a scalar.
func (t *Tensor[B]) MulScalar(s float32) *Tensor[B] {
	return t.wrap(t.backend.MulScalar(t.raw, s))
}

// Exp computes e^x element-wise.
func (t *Tensor[B]) Exp() *Tensor[B] { return t.wrap(t.backend.Exp(t.raw)) }

// Log computes the natural logarithm element-wise.
func (t *Tensor[B]) Log() *Tensor[B] { return t.wrap(t.backend.Log(t.raw)) }

// Sqrt computes the square root element-wise.
func (t *Tensor[B]) Sqrt() *Tensor[B] { return t.wrap(t.backend.Sqrt(t.raw)) }

// Rsqrt computes 1/sqrt(x) element-wise.
func (t *Tensor[B]) Rsqrt() *Tensor[B] { return t.wrap(t.backend.Rsqrt(t.raw)) }

// ReLU computes max(0, x) element-wise.
func (t *Tensor[B]) ReLU() *Tensor[B] { return t.wrap(t.backend.ReLU(t.raw)) }

// Sigmoid computes 1/(1+e^-x) element-wise.
func (t *Tensor[B]) Sigmoid() *Tensor[B] { return t.wrap(t.backend.Sigmoid(t.raw)) }

// Tanh computes the hyperbolic tangent element-wise.
func (t *Tensor[B]) Tanh() *Tensor[B] { return t.wrap(t.backend.Tanh(t.raw)) }

// Softmax normalizes along dim.
func (t *Tensor[B]) Softmax(dim int) *Tensor[B] {
	return t.wrap(t.backend.Softmax(t.raw, t.Shape().NormalizeDim(dim)))
}

// SumDim sums along dim.
func (t *Tensor[B]) SumDim(dim int, keepDim bool) *Tensor[B] {
	return t.wrap(t.backend.SumDim(t.raw, t.Shape().NormalizeDim(dim), keepDim))
}

// MeanDim averages along dim.
func (t *Tensor[B]) MeanDim(dim int, keepDim bool) *Tensor[B] {
	return t.wrap(t.backend.MeanDim(t.raw, t.Shape().NormalizeDim(dim), keepDim))
}

// Cat concatenates tensors along dim. All tensors must share a backend.
func Cat[B Backend](tensors []*Tensor[B], dim int) *Tensor[B] {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	first := tensors[0]
	return first.wrap(first.backend.Cat(raws, first.Shape().NormalizeDim(dim)))
}
