package nn

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Dropout zeroes elements with probability p in training mode and scales
// the rest by 1/(1-p). In eval mode it is the identity.
type Dropout[B tensor.Backend] struct {
	Mode

	p   float64
	src rand.Source
}

// NewDropout creates a Dropout layer with a seeded mask source.
func NewDropout[B tensor.Backend](p float64, seed uint64) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: p must be in [0, 1), got %v", p))
	}
	return &Dropout[B]{p: p, src: rand.NewSource(seed)}
}

// Forward applies dropout.
func (d *Dropout[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	if !d.Training() || d.p == 0 {
		return x
	}
	keep := distuv.Bernoulli{P: 1 - d.p, Src: d.src}
	mask := tensor.Zeros(x.Shape(), x.Backend())
	data := mask.Data()
	scale := float32(1 / (1 - d.p))
	for i := range data {
		data[i] = float32(keep.Rand()) * scale
	}
	return x.Mul(mask)
}

// Parameters returns nil; dropout has no parameters.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}

// P returns the drop probability.
func (d *Dropout[B]) P() float64 { return d.p }
