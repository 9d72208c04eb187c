package nn

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Conv1dConfig holds the convolution hyperparameters.
// Zero Stride and Dilation mean 1.
type Conv1dConfig struct {
	KernelSize int
	Stride     int
	Dilation   int
	Padding    int
	Same       bool // pad so that output length equals input length (stride 1, odd kernel)
	Reflect    bool // pad by mirroring the edges instead of with zeros
	NoBias     bool
}

// Conv1d applies a 1D convolution over [batch, channels, time] input.
//
// Weight has shape [out, in, kernel] and bias [out]:
//
//	conv := nn.NewConv1d("blocks.0.conv", 80, 512, nn.Conv1dConfig{KernelSize: 5, Same: true}, backend)
//	y := conv.Forward(x) // [N, 80, L] → [N, 512, L]
type Conv1d[B tensor.Backend] struct {
	in, out  int
	cfg      Conv1dConfig
	weight   *Parameter[B]
	bias     *Parameter[B]
	padding  int
	biasView tensor.Shape
}

// NewConv1d creates a zero-initialized Conv1d named prefix.weight and prefix.bias.
func NewConv1d[B tensor.Backend](prefix string, in, out int, cfg Conv1dConfig, backend B) *Conv1d[B] {
	if cfg.KernelSize <= 0 {
		panic(fmt.Sprintf("Conv1d %s: kernel size must be positive, got %d", prefix, cfg.KernelSize))
	}
	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	if cfg.Dilation == 0 {
		cfg.Dilation = 1
	}

	padding := cfg.Padding
	if cfg.Same {
		if cfg.Stride != 1 || cfg.KernelSize%2 == 0 {
			panic(fmt.Sprintf("Conv1d %s: same padding needs stride 1 and an odd kernel", prefix))
		}
		padding = cfg.Dilation * (cfg.KernelSize - 1) / 2
	}

	c := &Conv1d[B]{
		in:       in,
		out:      out,
		cfg:      cfg,
		padding:  padding,
		biasView: tensor.Shape{1, out, 1},
		weight: NewParameter(Join(prefix, "weight"), KindWeight,
			tensor.Zeros(tensor.Shape{out, in, cfg.KernelSize}, backend)),
	}
	if !cfg.NoBias {
		c.bias = NewParameter(Join(prefix, "bias"), KindBias, tensor.Zeros(tensor.Shape{out}, backend))
	}
	return c
}

// Forward convolves x [N, in, L] into [N, out, L'].
func (c *Conv1d[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[1] != c.in {
		panic(fmt.Sprintf("Conv1d %s: expected [N, %d, L], got %v", c.weight.Name(), c.in, shape))
	}
	padding := c.padding
	if c.cfg.Reflect && padding > 0 {
		x = ReflectPad(x, padding)
		padding = 0
	}
	y := x.Conv1D(c.weight.Tensor(), c.cfg.Stride, padding, c.cfg.Dilation)
	if c.bias != nil {
		y = y.Add(c.bias.Tensor().Reshape(c.biasView...))
	}
	return y
}

// Parameters returns [weight, bias], or [weight] without bias.
func (c *Conv1d[B]) Parameters() []*Parameter[B] {
	if c.bias == nil {
		return []*Parameter[B]{c.weight}
	}
	return []*Parameter[B]{c.weight, c.bias}
}

// Weight returns the weight parameter.
func (c *Conv1d[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter, or nil.
func (c *Conv1d[B]) Bias() *Parameter[B] { return c.bias }

// Padding returns the effective padding on each side.
func (c *Conv1d[B]) Padding() int { return c.padding }

// OutChannels returns the number of output channels.
func (c *Conv1d[B]) OutChannels() int { return c.out }

// ReflectPad mirrors p frames on both ends of the last axis of x, excluding
// the edge frame itself: [a b c d] with p=2 becomes [c b a b c d c b].
func ReflectPad[B tensor.Backend](x *tensor.Tensor[B], p int) *tensor.Tensor[B] {
	length := x.Shape()[len(x.Shape())-1]
	if p >= length {
		panic(fmt.Sprintf("reflect pad %d needs more than %d frames", p, length))
	}
	last := len(x.Shape()) - 1
	parts := make([]*tensor.Tensor[B], 0, 2*p+1)
	for i := p; i >= 1; i-- {
		parts = append(parts, x.Narrow(last, i, 1))
	}
	parts = append(parts, x)
	for i := length - 2; i >= length-1-p; i-- {
		parts = append(parts, x.Narrow(last, i, 1))
	}
	return tensor.Cat(parts, last)
}
