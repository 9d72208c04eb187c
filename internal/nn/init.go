package nn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Randomize fills weights and biases with Xavier-uniform values drawn from
// a seeded source. Buffers are left untouched. It is a test fixture helper
// for encoders that have no checkpoint.
func Randomize[B tensor.Backend](params []*Parameter[B], seed uint64) {
	src := rand.NewSource(seed)
	for _, p := range params {
		if p.Kind() == KindBuffer {
			continue
		}
		fanIn, fanOut := fans(p.Shape())
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
		if p.Kind() == KindBias {
			bound = 1 / math.Sqrt(float64(fanOut))
		}
		dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
		data := p.Tensor().Data()
		for i := range data {
			data[i] = float32(dist.Rand())
		}
	}
}

// fans computes fan-in and fan-out for weight shapes [out, in, k...].
func fans(shape tensor.Shape) (int, int) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return shape[0], shape[0]
	}
	receptive := 1
	for _, d := range shape[2:] {
		receptive *= d
	}
	return shape[1] * receptive, shape[0] * receptive
}
