// Package speaker implements an ECAPA-TDNN style speaker encoder.
//
// The encoder maps raw waveforms [batch, samples] at its native sample rate
// to embeddings shaped [batch, 1, lin_neurons], the layout the pretrained
// checkpoints were authored with. Parameter names follow the checkpoint
// keys, e.g. "blocks.1.res2net_block.blocks.0.conv.weight" or "asp_bn.running_var".
//
//	hp := speaker.DefaultHyperparams()
//	enc, err := speaker.NewEncoder(hp, cpu.New())
//	_, err = enc.LoadStateDict(weights)
//	enc.Eval()
//	emb := enc.EncodeBatch(wavs) // [B, 1, 192]
package speaker

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/nn"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Encoder is the speaker embedding model.
type Encoder[B tensor.Backend] struct {
	hp Hyperparams

	frontend *Frontend[B]
	input    *TDNNBlock[B]
	res      []*SERes2NetBlock[B]
	mfa      *TDNNBlock[B]
	asp      *AttentiveStatsPool[B]
	aspBN    *nn.BatchNorm1d[B]
	dropout  *nn.Dropout[B]
	fc       *nn.Conv1d[B]

	training bool
}

// NewEncoder builds a zero-weight encoder for hp on backend.
func NewEncoder[B tensor.Backend](hp Hyperparams, backend B) (*Encoder[B], error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	last := len(hp.Channels) - 1
	e := &Encoder[B]{
		hp:       hp,
		frontend: NewFrontend(hp, backend),
		input:    NewTDNNBlock("blocks.0", hp.NumMels, hp.Channels[0], hp.KernelSizes[0], hp.Dilations[0], backend),
	}

	mfaIn := 0
	for i := 1; i < last; i++ {
		prefix := fmt.Sprintf("blocks.%d", i)
		e.res = append(e.res, NewSERes2NetBlock(prefix, hp.Channels[i], hp.KernelSizes[i], hp.Dilations[i], hp.Res2NetScale, hp.SEChannels, backend))
		mfaIn += hp.Channels[i]
	}

	out := hp.Channels[last]
	e.mfa = NewTDNNBlock("mfa", mfaIn, out, hp.KernelSizes[last], hp.Dilations[last], backend)
	e.asp = NewAttentiveStatsPool("asp", out, hp.AttentionChannels, backend)
	e.aspBN = nn.NewBatchNorm1d("asp_bn", 2*out, backend)
	e.dropout = nn.NewDropout[B](hp.Dropout, 0)
	e.fc = nn.NewConv1d("fc", 2*out, hp.LinNeurons, nn.Conv1dConfig{KernelSize: 1}, backend)
	return e, nil
}

// EncodeBatch embeds wavs [B, N] (or a single [N] clip) into [B, 1, E].
func (e *Encoder[B]) EncodeBatch(wavs *tensor.Tensor[B]) *tensor.Tensor[B] {
	switch len(wavs.Shape()) {
	case 1:
		wavs = wavs.Unsqueeze(0)
	case 2:
	default:
		panic(fmt.Sprintf("speaker: expected [batch, samples], got %v", wavs.Shape()))
	}

	x := e.input.Forward(e.frontend.Forward(wavs))

	hidden := make([]*tensor.Tensor[B], 0, len(e.res))
	for _, block := range e.res {
		x = block.Forward(x)
		hidden = append(hidden, x)
	}

	x = e.mfa.Forward(tensor.Cat(hidden, 1))
	x = e.aspBN.Forward(e.asp.Forward(x))
	x = e.fc.Forward(e.dropout.Forward(x)) // [B, E, 1]
	return x.Transpose(0, 2, 1)
}

// Forward is EncodeBatch, so the encoder is an nn.Module.
func (e *Encoder[B]) Forward(wavs *tensor.Tensor[B]) *tensor.Tensor[B] {
	return e.EncodeBatch(wavs)
}

// Parameters returns every checkpoint tensor in a stable order.
func (e *Encoder[B]) Parameters() []*nn.Parameter[B] {
	params := e.input.Parameters()
	for _, block := range e.res {
		params = append(params, block.Parameters()...)
	}
	params = append(params, e.mfa.Parameters()...)
	params = append(params, e.asp.Parameters()...)
	params = append(params, e.aspBN.Parameters()...)
	return append(params, e.fc.Parameters()...)
}

// Buffers returns tensors generated from the hyperparameters rather than
// loaded from a checkpoint.
func (e *Encoder[B]) Buffers() []*nn.Parameter[B] {
	return e.frontend.Buffers()
}

// LoadStateDict copies checkpoint tensors into the encoder and returns the
// checkpoint keys it did not use.
func (e *Encoder[B]) LoadStateDict(state map[string]*tensor.RawTensor) ([]string, error) {
	return nn.LoadStateDict(e.Parameters(), state)
}

// StateDict returns the checkpoint tensors by name.
func (e *Encoder[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.StateDict(e.Parameters())
}

func (e *Encoder[B]) trainables() []nn.Trainable {
	ts := e.input.trainables()
	for _, block := range e.res {
		ts = append(ts, block.trainables()...)
	}
	ts = append(ts, e.mfa.trainables()...)
	ts = append(ts, e.asp.trainables()...)
	return append(ts, e.aspBN, e.dropout)
}

// Train switches batch norms and dropout to training behavior.
func (e *Encoder[B]) Train() {
	e.training = true
	for _, t := range e.trainables() {
		t.Train()
	}
}

// Eval switches batch norms and dropout to inference behavior.
func (e *Encoder[B]) Eval() {
	e.training = false
	for _, t := range e.trainables() {
		t.Eval()
	}
}

// Training reports whether any sub-module is in training mode.
func (e *Encoder[B]) Training() bool {
	if e.training {
		return true
	}
	for _, t := range e.trainables() {
		if t.Training() {
			return true
		}
	}
	return false
}

// SampleRate returns the native sample rate in Hz.
func (e *Encoder[B]) SampleRate() int {
	return e.hp.SampleRate
}

// EmbeddingDim returns the embedding size E.
func (e *Encoder[B]) EmbeddingDim() int {
	return e.hp.LinNeurons
}

// Hyperparams returns the architecture description.
func (e *Encoder[B]) Hyperparams() Hyperparams {
	return e.hp
}

// NumParams returns the number of checkpoint scalars.
func (e *Encoder[B]) NumParams() int {
	return nn.NumParams(e.Parameters())
}
