package nn

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// DefaultBatchNormEps matches the usual framework default.
const DefaultBatchNormEps = 1e-5

// BatchNorm1d normalizes [N, C, L] or [N, C] input per channel.
//
// In eval mode the running statistics are folded into a per-channel scale
// and shift computed from the parameters alone:
//
//	scale = weight / sqrt(running_var + eps)
//	shift = bias - running_mean * scale
//	y     = x * scale + shift
//
// In training mode batch statistics are used. Running statistics are not
// updated since nothing here trains.
type BatchNorm1d[B tensor.Backend] struct {
	Mode

	features    int
	eps         float32
	weight      *Parameter[B]
	bias        *Parameter[B]
	runningMean *Parameter[B]
	runningVar  *Parameter[B]
}

// NewBatchNorm1d creates an identity-initialized BatchNorm1d named prefix.*.
func NewBatchNorm1d[B tensor.Backend](prefix string, features int, backend B) *BatchNorm1d[B] {
	shape := tensor.Shape{features}
	return &BatchNorm1d[B]{
		features:    features,
		eps:         DefaultBatchNormEps,
		weight:      NewParameter(Join(prefix, "weight"), KindBuffer, tensor.Full(shape, 1, backend)),
		bias:        NewParameter(Join(prefix, "bias"), KindBias, tensor.Zeros(shape, backend)),
		runningMean: NewParameter(Join(prefix, "running_mean"), KindBuffer, tensor.Zeros(shape, backend)),
		runningVar:  NewParameter(Join(prefix, "running_var"), KindBuffer, tensor.Full(shape, 1, backend)),
	}
}

// Forward normalizes x.
func (bn *BatchNorm1d[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if (len(shape) != 2 && len(shape) != 3) || shape[1] != bn.features {
		panic(fmt.Sprintf("BatchNorm1d %s: expected [N, %d, ...], got %v", bn.weight.Name(), bn.features, shape))
	}
	view := tensor.Shape{1, bn.features}
	if len(shape) == 3 {
		view = append(view, 1)
	}

	if bn.Training() {
		mean, variance := batchStats(x)
		norm := x.Sub(mean).Mul(variance.AddScalar(bn.eps).Rsqrt())
		return norm.Mul(bn.weight.Tensor().Reshape(view...)).Add(bn.bias.Tensor().Reshape(view...))
	}

	scale := bn.weight.Tensor().Mul(bn.runningVar.Tensor().AddScalar(bn.eps).Rsqrt())
	shift := bn.bias.Tensor().Sub(bn.runningMean.Tensor().Mul(scale))
	return x.Mul(scale.Reshape(view...)).Add(shift.Reshape(view...))
}

// batchStats returns the per-channel mean and biased variance over every
// dimension except 1, keeping dims for broadcasting.
func batchStats[B tensor.Backend](x *tensor.Tensor[B]) (*tensor.Tensor[B], *tensor.Tensor[B]) {
	reduce := func(t *tensor.Tensor[B]) *tensor.Tensor[B] {
		for d := len(t.Shape()) - 1; d >= 0; d-- {
			if d != 1 {
				t = t.MeanDim(d, true)
			}
		}
		return t
	}
	mean := reduce(x)
	diff := x.Sub(mean)
	return mean, reduce(diff.Mul(diff))
}

// Parameters returns weight, bias, running_mean and running_var.
func (bn *BatchNorm1d[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias, bn.runningMean, bn.runningVar}
}

