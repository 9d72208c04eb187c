package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// SumDim sums along dim.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduce("sumdim", x, dim, keepDim, 1)
}

// MeanDim averages along dim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("meandim: dimension %d out of range for %v", dim, shape))
	}
	return cpu.reduce("meandim", x, dim, keepDim, 1/float32(shape[dim]))
}

func (cpu *CPUBackend) reduce(op string, x *tensor.RawTensor, dim int, keepDim bool, scale float32) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("%s: dimension %d out of range for %v", op, dim, shape))
	}

	outShape := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}

	outer, inner := splitAt(shape, dim)
	size := shape[dim]
	result := tensor.MustRaw(outShape, cpu.device)
	in, out := x.Data(), result.Data()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var sum float32
			for s := 0; s < size; s++ {
				sum += in[(o*size+s)*inner+i]
			}
			out[o*inner+i] = sum * scale
		}
	}
	return result
}

// Softmax normalizes along dim with the max-subtraction trick.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("softmax: dimension %d out of range for %v", dim, shape))
	}

	outer, inner := splitAt(shape, dim)
	size := shape[dim]
	result := tensor.MustRaw(shape, cpu.device)
	in, out := x.Data(), result.Data()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			at := func(s int) int { return (o*size+s)*inner + i }

			maxVal := float32(math.Inf(-1))
			for s := 0; s < size; s++ {
				maxVal = max(maxVal, in[at(s)])
			}
			var sum float64
			for s := 0; s < size; s++ {
				e := math.Exp(float64(in[at(s)] - maxVal))
				out[at(s)] = float32(e)
				sum += e
			}
			for s := 0; s < size; s++ {
				out[at(s)] = float32(float64(out[at(s)]) / sum)
			}
		}
	}
	return result
}
