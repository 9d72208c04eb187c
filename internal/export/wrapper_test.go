package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spkrec-export/internal/backend/cpu"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// fixedEmbedder returns a tensor of a fixed shape regardless of input.
type fixedEmbedder struct {
	shape   tensor.Shape
	backend *cpu.CPUBackend
}

func (f fixedEmbedder) EncodeBatch(*tensor.Tensor[*cpu.CPUBackend]) *tensor.Tensor[*cpu.CPUBackend] {
	out := tensor.Zeros(f.shape, f.backend)
	for i := range out.Data() {
		out.Data()[i] = float32(i)
	}
	return out
}

func (fixedEmbedder) SampleRate() int { return 16000 }

func TestWrapperForward(t *testing.T) {
	backend := cpu.New()
	x := tensor.Zeros(tensor.Shape{1, 48000}, backend)

	tests := []struct {
		name  string
		shape tensor.Shape
		want  tensor.Shape
		err   bool
	}{
		{"squeeze", tensor.Shape{1, 1, 192}, tensor.Shape{1, 192}, false},
		{"passthrough", tensor.Shape{1, 192}, tensor.Shape{1, 192}, false},
		{"batch squeeze", tensor.Shape{3, 1, 192}, tensor.Shape{3, 192}, false},
		{"rank 3 wide", tensor.Shape{1, 2, 192}, nil, true},
		{"rank 4", tensor.Shape{1, 1, 1, 192}, nil, true},
		{"rank 1", tensor.Shape{192}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Wrap[*cpu.CPUBackend](fixedEmbedder{shape: tt.shape, backend: backend})
			out, err := w.Forward(x)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnexpectedRank)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Shape())
			assert.Equal(t, float32(5), out.Data()[5], "values are kept in order")
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, shape := range []tensor.Shape{{1, 1, 192}, {1, 192}, {4, 1, 6}} {
		once, err := Normalize(shape)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
		assert.Len(t, once, 2)
	}
}

func TestWrapperSampleRate(t *testing.T) {
	w := Wrap[*cpu.CPUBackend](fixedEmbedder{shape: tensor.Shape{1, 4}, backend: cpu.New()})
	assert.Equal(t, 16000, w.SampleRate())
	assert.NotNil(t, w.Model())
}
