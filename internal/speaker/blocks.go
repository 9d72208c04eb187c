package speaker

import (
	"strconv"

	"github.com/born-ml/spkrec-export/internal/nn"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// TDNNBlock is conv → relu → batch norm with reflected same padding.
type TDNNBlock[B tensor.Backend] struct {
	conv *nn.Conv1d[B]
	norm *nn.BatchNorm1d[B]
}

// NewTDNNBlock creates a block with parameters under prefix.conv and prefix.norm.
func NewTDNNBlock[B tensor.Backend](prefix string, in, out, kernel, dilation int, backend B) *TDNNBlock[B] {
	return &TDNNBlock[B]{
		conv: nn.NewConv1d(nn.Join(prefix, "conv"), in, out,
			nn.Conv1dConfig{KernelSize: kernel, Dilation: dilation, Same: true, Reflect: true}, backend),
		norm: nn.NewBatchNorm1d(nn.Join(prefix, "norm"), out, backend),
	}
}

// Forward maps [N, in, T] to [N, out, T].
func (b *TDNNBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	return b.norm.Forward(b.conv.Forward(x).ReLU())
}

// Parameters returns the conv and norm parameters.
func (b *TDNNBlock[B]) Parameters() []*nn.Parameter[B] {
	return append(b.conv.Parameters(), b.norm.Parameters()...)
}

func (b *TDNNBlock[B]) trainables() []nn.Trainable {
	return []nn.Trainable{b.norm}
}

// SEBlock rescales channels by a gate computed from their time average.
type SEBlock[B tensor.Backend] struct {
	conv1 *nn.Conv1d[B]
	conv2 *nn.Conv1d[B]
}

// NewSEBlock creates a squeeze-excitation block.
func NewSEBlock[B tensor.Backend](prefix string, channels, bottleneck int, backend B) *SEBlock[B] {
	return &SEBlock[B]{
		conv1: nn.NewConv1d(nn.Join(prefix, "conv1"), channels, bottleneck, nn.Conv1dConfig{KernelSize: 1}, backend),
		conv2: nn.NewConv1d(nn.Join(prefix, "conv2"), bottleneck, channels, nn.Conv1dConfig{KernelSize: 1}, backend),
	}
}

// Forward returns x * sigmoid(conv2(relu(conv1(mean_t(x))))).
func (s *SEBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	gate := x.MeanDim(2, true)
	gate = s.conv2.Forward(s.conv1.Forward(gate).ReLU()).Sigmoid()
	return x.Mul(gate)
}

// Parameters returns both convolutions' parameters.
func (s *SEBlock[B]) Parameters() []*nn.Parameter[B] {
	return append(s.conv1.Parameters(), s.conv2.Parameters()...)
}

// Res2NetBlock splits channels into scale groups. The first group passes
// through; group k > 0 goes through its own dilated TDNN after adding the
// previous group's output (except for k == 1).
type Res2NetBlock[B tensor.Backend] struct {
	scale  int
	blocks []*TDNNBlock[B]
}

// NewRes2NetBlock creates scale-1 TDNNs over channels/scale channels each,
// named prefix.blocks.0 onward.
func NewRes2NetBlock[B tensor.Backend](prefix string, channels, scale, kernel, dilation int, backend B) *Res2NetBlock[B] {
	width := channels / scale
	r := &Res2NetBlock[B]{scale: scale}
	for i := 0; i < scale-1; i++ {
		name := nn.Join(prefix, "blocks."+strconv.Itoa(i))
		r.blocks = append(r.blocks, NewTDNNBlock(name, width, width, kernel, dilation, backend))
	}
	return r
}

// Forward maps [N, C, T] to [N, C, T].
func (r *Res2NetBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	if r.scale == 1 {
		return x
	}
	groups := x.Chunk(r.scale, 1)
	out := make([]*tensor.Tensor[B], len(groups))
	out[0] = groups[0]
	for i := 1; i < len(groups); i++ {
		in := groups[i]
		if i > 1 {
			in = in.Add(out[i-1])
		}
		out[i] = r.blocks[i-1].Forward(in)
	}
	return tensor.Cat(out, 1)
}

// Parameters returns the parameters of every group TDNN.
func (r *Res2NetBlock[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, b := range r.blocks {
		params = append(params, b.Parameters()...)
	}
	return params
}

func (r *Res2NetBlock[B]) trainables() []nn.Trainable {
	ts := make([]nn.Trainable, 0, len(r.blocks))
	for _, b := range r.blocks {
		ts = append(ts, b.norm)
	}
	return ts
}

// SERes2NetBlock is 1x1 TDNN → Res2Net → 1x1 TDNN → SE, plus the input.
type SERes2NetBlock[B tensor.Backend] struct {
	tdnn1   *TDNNBlock[B]
	res2net *Res2NetBlock[B]
	tdnn2   *TDNNBlock[B]
	se      *SEBlock[B]
}

// NewSERes2NetBlock creates a residual block over channels.
func NewSERes2NetBlock[B tensor.Backend](prefix string, channels, kernel, dilation, scale, seChannels int, backend B) *SERes2NetBlock[B] {
	return &SERes2NetBlock[B]{
		tdnn1:   NewTDNNBlock(nn.Join(prefix, "tdnn1"), channels, channels, 1, 1, backend),
		res2net: NewRes2NetBlock(nn.Join(prefix, "res2net_block"), channels, scale, kernel, dilation, backend),
		tdnn2:   NewTDNNBlock(nn.Join(prefix, "tdnn2"), channels, channels, 1, 1, backend),
		se:      NewSEBlock(nn.Join(prefix, "se"), channels, seChannels, backend),
	}
}

// Forward maps [N, C, T] to [N, C, T].
func (r *SERes2NetBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	y := r.tdnn2.Forward(r.res2net.Forward(r.tdnn1.Forward(x)))
	return r.se.Forward(y).Add(x)
}

// Parameters returns the parameters of all sub-blocks.
func (r *SERes2NetBlock[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	params = append(params, r.tdnn1.Parameters()...)
	params = append(params, r.res2net.Parameters()...)
	params = append(params, r.tdnn2.Parameters()...)
	return append(params, r.se.Parameters()...)
}

func (r *SERes2NetBlock[B]) trainables() []nn.Trainable {
	ts := []nn.Trainable{r.tdnn1.norm}
	ts = append(ts, r.res2net.trainables()...)
	return append(ts, r.tdnn2.norm)
}
