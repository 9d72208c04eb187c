// Package cpu implements the CPU compute backend.
//
// Element-wise kernels are plain Go loops; matrix products and the im2col
// convolution run through gonum's float32 BLAS.
package cpu

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// CPUBackend implements tensor.Backend on the host CPU.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

// binary applies f element-wise over the broadcast of a and b.
func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	result := tensor.MustRaw(outShape, cpu.device)
	out, ad, bd := result.Data(), a.Data(), b.Data()

	// Fast path: same shape, no index arithmetic.
	if a.Shape().Equal(b.Shape()) {
		for i := range out {
			out[i] = f(ad[i], bd[i])
		}
		return result
	}

	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	outStrides := outShape.ComputeStrides()
	for i := range out {
		ai, bi := broadcastIndex(i, outStrides, aStrides, bStrides)
		out[i] = f(ad[ai], bd[bi])
	}
	return result
}

// broadcastStrides computes strides for reading inShape as outShape.
// Dimensions of size 1 and missing leading dimensions get stride 0.
func broadcastStrides(inShape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	offset := len(outShape) - len(inShape)
	orig := inShape.ComputeStrides()

	for i := range outShape {
		j := i - offset
		if j < 0 || inShape[j] == 1 {
			continue
		}
		strides[i] = orig[j]
	}
	return strides
}

// broadcastIndex maps a flat output index to flat indices in both inputs.
func broadcastIndex(idx int, outStrides, aStrides, bStrides []int) (int, int) {
	ai, bi := 0, 0
	for d, s := range outStrides {
		coord := idx / s
		idx %= s
		ai += coord * aStrides[d]
		bi += coord * bStrides[d]
	}
	return ai, bi
}
