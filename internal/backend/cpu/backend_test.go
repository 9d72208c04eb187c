package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, tensor.Shape(shape), tensor.CPU)
	require.NoError(t, err)
	return r
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestAddBroadcast(t *testing.T) {
	b := New()
	x := raw(t, seq(6), 1, 2, 3)
	bias := raw(t, []float32{10, 20}, 1, 2, 1)

	out := b.Add(x, bias)
	assert.Equal(t, tensor.Shape{1, 2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 12, 13, 24, 25, 26}, out.Data())

	// Inputs are never written to.
	assert.Equal(t, seq(6), x.Data())
	assert.Panics(t, func() { b.Add(raw(t, seq(6), 2, 3), raw(t, seq(4), 2, 2)) })
}

func TestBinaryOps(t *testing.T) {
	b := New()
	x := raw(t, []float32{6, 8}, 2)
	y := raw(t, []float32{2, 4}, 2)

	assert.Equal(t, []float32{4, 4}, b.Sub(x, y).Data())
	assert.Equal(t, []float32{12, 32}, b.Mul(x, y).Data())
	assert.Equal(t, []float32{3, 2}, b.Div(x, y).Data())
}

func TestMatMul(t *testing.T) {
	b := New()

	t.Run("2D", func(t *testing.T) {
		out := b.MatMul(raw(t, seq(6), 2, 3), raw(t, seq(6), 3, 2))
		assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
		assert.Equal(t, []float32{22, 28, 49, 64}, out.Data())
	})

	t.Run("matrix times batch", func(t *testing.T) {
		fb := raw(t, []float32{1, 1, 0, 0, 0, 1}, 2, 3)
		x := raw(t, seq(12), 2, 3, 2)
		out := b.MatMul(fb, x)
		require.Equal(t, tensor.Shape{2, 2, 2}, out.Shape())
		// batch 0: rows [1,2],[3,4],[5,6]
		assert.Equal(t, []float32{4, 6, 5, 6, 16, 18, 11, 12}, out.Data())
	})

	t.Run("batched", func(t *testing.T) {
		a := raw(t, seq(8), 2, 2, 2)
		eye := raw(t, []float32{1, 0, 0, 1}, 1, 2, 2)
		out := b.MatMul(a, eye)
		assert.Equal(t, seq(8), out.Data())
	})

	assert.Panics(t, func() { b.MatMul(raw(t, seq(6), 2, 3), raw(t, seq(6), 2, 3)) })
}

// naiveConv1D is a direct reference implementation.
func naiveConv1D(x, w []float32, n, c, l, o, k, stride, pad, dil int) []float32 {
	outLen := (l+2*pad-dil*(k-1)-1)/stride + 1
	out := make([]float32, n*o*outLen)
	for b := 0; b < n; b++ {
		for oc := 0; oc < o; oc++ {
			for t := 0; t < outLen; t++ {
				var sum float32
				for ic := 0; ic < c; ic++ {
					for kk := 0; kk < k; kk++ {
						pos := t*stride + kk*dil - pad
						if pos < 0 || pos >= l {
							continue
						}
						sum += x[(b*c+ic)*l+pos] * w[(oc*c+ic)*k+kk]
					}
				}
				out[(b*o+oc)*outLen+t] = sum
			}
		}
	}
	return out
}

func TestConv1D(t *testing.T) {
	b := New()
	tests := []struct {
		name                            string
		n, c, l, o, k, stride, pad, dil int
	}{
		{"pointwise", 1, 3, 7, 2, 1, 1, 0, 1},
		{"same padding", 2, 2, 9, 3, 3, 1, 1, 1},
		{"dilated", 1, 2, 12, 2, 3, 1, 2, 2},
		{"strided frames", 1, 1, 20, 4, 6, 3, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := seq(tt.n * tt.c * tt.l)
			w := make([]float32, tt.o*tt.c*tt.k)
			for i := range w {
				w[i] = float32(i%5) - 2
			}

			out := b.Conv1D(raw(t, x, tt.n, tt.c, tt.l), raw(t, w, tt.o, tt.c, tt.k), tt.stride, tt.pad, tt.dil)
			want := naiveConv1D(x, w, tt.n, tt.c, tt.l, tt.o, tt.k, tt.stride, tt.pad, tt.dil)
			assert.InDeltaSlice(t, want, out.Data(), 1e-3)
		})
	}

	assert.Panics(t, func() {
		b.Conv1D(raw(t, seq(4), 1, 1, 4), raw(t, seq(5), 1, 1, 5), 1, 0, 1)
	})
}

func TestShapeOps(t *testing.T) {
	b := New()
	x := raw(t, seq(6), 2, 3)

	tr := b.Transpose(x, 1, 0)
	assert.Equal(t, tensor.Shape{3, 2}, tr.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tr.Data())

	r := b.Reshape(x, tensor.Shape{3, -1})
	assert.Equal(t, tensor.Shape{3, 2}, r.Shape())
	assert.NotSame(t, x, r)

	u := b.Unsqueeze(x, 1)
	assert.Equal(t, tensor.Shape{2, 1, 3}, u.Shape())
	s := b.Squeeze(u, 1)
	assert.Equal(t, tensor.Shape{2, 3}, s.Shape())
	assert.Panics(t, func() { b.Squeeze(x, 0) })

	c := b.Cat([]*tensor.RawTensor{x, raw(t, []float32{7, 8}, 2, 1)}, 1)
	assert.Equal(t, tensor.Shape{2, 4}, c.Shape())
	assert.Equal(t, []float32{1, 2, 3, 7, 4, 5, 6, 8}, c.Data())

	n := b.Narrow(x, 1, 1, 2)
	assert.Equal(t, tensor.Shape{2, 2}, n.Shape())
	assert.Equal(t, []float32{2, 3, 5, 6}, n.Data())
	assert.Equal(t, []float32{4, 5, 6}, b.Narrow(x, 0, 1, 1).Data())
	assert.Panics(t, func() { b.Narrow(x, 1, 2, 2) })
	assert.Panics(t, func() { b.Narrow(x, 1, 0, 0) })
}

func TestReductions(t *testing.T) {
	b := New()
	x := raw(t, seq(6), 2, 3)

	assert.Equal(t, []float32{6, 15}, b.SumDim(x, 1, false).Data())
	keep := b.MeanDim(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, keep.Shape())
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, keep.Data())

	sm := b.Softmax(x, 1)
	row := sm.Data()[:3]
	assert.InDelta(t, 1.0, row[0]+row[1]+row[2], 1e-6)
	assert.Greater(t, row[2], row[1])
}

func TestUnaryOps(t *testing.T) {
	b := New()
	x := raw(t, []float32{-1, 0, 4}, 3)

	assert.Equal(t, []float32{0, 0, 4}, b.ReLU(x).Data())
	assert.Equal(t, []float32{1, 2, 6}, b.AddScalar(x, 2).Data())
	assert.Equal(t, []float32{-2, 0, 8}, b.MulScalar(x, 2).Data())
	assert.InDelta(t, 0.5, b.Sigmoid(x).Data()[1], 1e-6)
	assert.InDelta(t, math.Tanh(-1), b.Tanh(x).Data()[0], 1e-6)
	assert.InDelta(t, 2, b.Sqrt(x).Data()[2], 1e-6)
	assert.InDelta(t, 0.5, b.Rsqrt(x).Data()[2], 1e-6)
	assert.InDelta(t, 1, b.Exp(x).Data()[1], 1e-6)
	assert.InDelta(t, math.Log(4), b.Log(x).Data()[2], 1e-6)
}
