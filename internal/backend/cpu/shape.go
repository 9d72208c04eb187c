package cpu

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Reshape returns t viewed under newShape. One dimension may be -1 and is
// inferred. The buffer is shared; backends never write to their inputs.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	shape := newShape.Clone()
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d <= 0:
			panic(fmt.Sprintf("reshape: invalid target shape %v", newShape))
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || t.NumElements()%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension of %v from %v", newShape, t.Shape()))
		}
		shape[infer] = t.NumElements() / known
	}
	if shape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v into %v", t.Shape(), newShape))
	}
	return t.View(shape)
}

// Transpose permutes the dimensions of t according to axes.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	inShape := t.Shape()
	if len(axes) != len(inShape) {
		panic(fmt.Sprintf("transpose: %d axes for shape %v", len(axes), inShape))
	}

	seen := make([]bool, len(axes))
	outShape := make(tensor.Shape, len(axes))
	for i, ax := range axes {
		if ax < 0 || ax >= len(inShape) || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid permutation %v", axes))
		}
		seen[ax] = true
		outShape[i] = inShape[ax]
	}

	result := tensor.MustRaw(outShape, cpu.device)
	in, out := t.Data(), result.Data()
	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()

	for i := range out {
		src := 0
		rem := i
		for d, s := range outStrides {
			coord := rem / s
			rem %= s
			src += coord * inStrides[axes[d]]
		}
		out[i] = in[src]
	}
	return result
}

// Squeeze removes dimension dim, which must have size 1.
func (cpu *CPUBackend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) || shape[dim] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d of %v is not 1", dim, shape))
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	out = append(out, shape[dim+1:]...)
	return x.View(out)
}

// Unsqueeze inserts a dimension of size 1 at dim.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim > len(shape) {
		panic(fmt.Sprintf("unsqueeze: dimension %d out of range for %v", dim, shape))
	}
	out := make(tensor.Shape, 0, len(shape)+1)
	out = append(out, shape[:dim]...)
	out = append(out, 1)
	out = append(out, shape[dim:]...)
	return x.View(out)
}

// Cat concatenates tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	first := tensors[0].Shape()
	if dim < 0 || dim >= len(first) {
		panic(fmt.Sprintf("cat: dimension %d out of range for %v", dim, first))
	}

	outShape := first.Clone()
	outShape[dim] = 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) {
			panic(fmt.Sprintf("cat: rank mismatch %v vs %v", first, s))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(fmt.Sprintf("cat: shape mismatch %v vs %v at dimension %d", first, s, i))
			}
		}
		outShape[dim] += s[dim]
	}

	outer, inner := splitAt(first, dim)
	result := tensor.MustRaw(outShape, cpu.device)
	out := result.Data()

	pos := 0
	for o := 0; o < outer; o++ {
		for _, t := range tensors {
			block := t.Shape()[dim] * inner
			copy(out[pos:pos+block], t.Data()[o*block:(o+1)*block])
			pos += block
		}
	}
	return result
}

// Narrow copies length entries of dim starting at start.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("narrow: dimension %d out of range for %v", dim, shape))
	}
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d of %v", start, start+length, dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	outer, inner := splitAt(shape, dim)
	result := tensor.MustRaw(outShape, cpu.device)
	out, src := result.Data(), x.Data()

	block := length * inner
	stride := shape[dim] * inner
	for o := 0; o < outer; o++ {
		from := o*stride + start*inner
		copy(out[o*block:(o+1)*block], src[from:from+block])
	}
	return result
}

// splitAt returns the element counts before and after dim.
func splitAt(shape tensor.Shape, dim int) (outer, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, inner
}
