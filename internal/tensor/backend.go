package tensor

// Backend defines the interface that all compute backends must implement.
//
// Every operation returns a newly allocated result; inputs are never
// modified. Operations panic on shape errors, which are programming errors
// in the calling module.
//
// Implementations:
//   - cpu.CPUBackend: pure Go, gonum BLAS for matrix products
//   - trace.Backend: decorator that records every call on a tape
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// MatMul multiplies the last two dimensions and broadcasts the leading
	// (batch) dimensions: [..., M, K] @ [..., K, N] -> [..., M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Conv1D convolves input [N, C, L] with kernel [O, C, K].
	Conv1D(input, kernel *RawTensor, stride, padding, dilation int) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Squeeze(x *RawTensor, dim int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor

	// Scalar operations.
	AddScalar(x *RawTensor, scalar float32) *RawTensor
	MulScalar(x *RawTensor, scalar float32) *RawTensor

	// Element-wise math.
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor

	// Activations.
	ReLU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
