package tensor

import "fmt"

// Tensor is a float32 tensor bound to backend B.
// Operations dispatch to the backend, so running the same module code over
// a recording backend captures it as a graph.
//
//	backend := cpu.New()
//	x := tensor.Zeros(tensor.Shape{3, 4}, backend)
//	y := x.AddScalar(1).MatMul(w)
type Tensor[B Backend] struct {
	raw     *RawTensor
	backend B
}

// New creates a Tensor from a RawTensor and backend.
func New[B Backend](raw *RawTensor, b B) *Tensor[B] {
	return &Tensor[B]{raw: raw, backend: b}
}

// FromSlice creates a tensor from a Go slice. The slice is copied.
func FromSlice[B Backend](data []float32, shape Shape, b B) (*Tensor[B], error) {
	raw, err := FromFloat32(data, shape, b.Device())
	if err != nil {
		return nil, err
	}
	return New(raw, b), nil
}

// Zeros creates a zero-filled tensor.
func Zeros[B Backend](shape Shape, b B) *Tensor[B] {
	return New(MustRaw(shape, b.Device()), b)
}

// Full creates a tensor filled with value.
func Full[B Backend](shape Shape, value float32, b B) *Tensor[B] {
	raw := MustRaw(shape, b.Device())
	for i := range raw.data {
		raw.data[i] = value
	}
	return New(raw, b)
}

// Shape returns the tensor's shape.
func (t *Tensor[B]) Shape() Shape {
	return t.raw.Shape()
}

// Raw returns the underlying RawTensor.
func (t *Tensor[B]) Raw() *RawTensor {
	return t.raw
}

// Backend returns the computation backend.
func (t *Tensor[B]) Backend() B {
	return t.backend
}

// Data returns the underlying float32 slice (zero-copy).
func (t *Tensor[B]) Data() []float32 {
	return t.raw.Data()
}

// String returns a short description, not the data.
func (t *Tensor[B]) String() string {
	return fmt.Sprintf("Tensor(%v, %s)", t.Shape(), t.backend.Name())
}

func (t *Tensor[B]) wrap(raw *RawTensor) *Tensor[B] {
	return New(raw, t.backend)
}
