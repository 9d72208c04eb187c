package cpu

import (
	"math"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return v + scalar })
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return v * scalar })
}

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes ln(x) element-wise.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// Sqrt computes √x element-wise.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Sqrt(float64(v))) })
}

// Rsqrt computes 1/√x element-wise.
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(1 / math.Sqrt(float64(v))) })
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
}

// Sigmoid computes 1/(1+e^-x) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) })
}

// Tanh computes tanh(x) element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

func (cpu *CPUBackend) unary(x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape(), cpu.device)
	out := result.Data()
	for i, v := range x.Data() {
		out[i] = f(v)
	}
	return result
}
