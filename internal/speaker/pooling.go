package speaker

import (
	"github.com/born-ml/spkrec-export/internal/nn"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

const statsEps = 1e-12

// AttentiveStatsPool reduces [N, C, T] to [N, 2C, 1] by attention-weighted
// mean and standard deviation over time. The attention sees each frame
// together with the global mean and std of the utterance.
type AttentiveStatsPool[B tensor.Backend] struct {
	tdnn *TDNNBlock[B]
	conv *nn.Conv1d[B]
}

// NewAttentiveStatsPool creates the pooling layer under prefix.
func NewAttentiveStatsPool[B tensor.Backend](prefix string, channels, attention int, backend B) *AttentiveStatsPool[B] {
	return &AttentiveStatsPool[B]{
		tdnn: NewTDNNBlock(nn.Join(prefix, "tdnn"), 3*channels, attention, 1, 1, backend),
		conv: nn.NewConv1d(nn.Join(prefix, "conv"), attention, channels, nn.Conv1dConfig{KernelSize: 1}, backend),
	}
}

// Forward pools x over time.
func (p *AttentiveStatsPool[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	frames := x.Shape()[2]

	mean, std := statistics(x, nil)
	ones := tensor.Full(tensor.Shape{1, 1, frames}, 1, x.Backend())
	context := tensor.Cat([]*tensor.Tensor[B]{x, ones.Mul(mean), ones.Mul(std)}, 1)

	attn := p.conv.Forward(p.tdnn.Forward(context).Tanh()).Softmax(2)
	mean, std = statistics(x, attn)
	return tensor.Cat([]*tensor.Tensor[B]{mean, std}, 1)
}

// statistics returns the weighted mean and std over dim 2, kept as size 1.
// A nil weight means uniform weights.
func statistics[B tensor.Backend](x, w *tensor.Tensor[B]) (*tensor.Tensor[B], *tensor.Tensor[B]) {
	var mean, variance *tensor.Tensor[B]
	if w == nil {
		mean = x.MeanDim(2, true)
		diff := x.Sub(mean)
		variance = diff.Mul(diff).MeanDim(2, true)
	} else {
		mean = x.Mul(w).SumDim(2, true)
		diff := x.Sub(mean)
		variance = diff.Mul(diff).Mul(w).SumDim(2, true)
	}
	return mean, variance.ReLU().AddScalar(statsEps).Sqrt()
}

// Parameters returns the attention parameters.
func (p *AttentiveStatsPool[B]) Parameters() []*nn.Parameter[B] {
	return append(p.tdnn.Parameters(), p.conv.Parameters()...)
}

func (p *AttentiveStatsPool[B]) trainables() []nn.Trainable {
	return p.tdnn.trainables()
}
