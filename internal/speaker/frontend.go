package speaker

import (
	"math"

	"github.com/mjibson/go-dsp/window"

	"github.com/born-ml/spkrec-export/internal/nn"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

const logFloor = 1e-6

// Frontend computes mean-normalized log mel filterbank features.
//
// The short-time Fourier transform is expressed as two strided
// convolutions whose kernels are the windowed cosine and sine bases, so
// the whole front-end is ordinary tensor ops and becomes part of a traced
// graph:
//
//	[B, N] → unsqueeze → conv(cos), conv(sin) → re²+im² → mel @ power → log → -mean
//
// Frames are centered: the signal is zero padded by half a window on
// each side.
type Frontend[B tensor.Backend] struct {
	numMels int
	hop     int
	pad     int
	dftReal *nn.Parameter[B] // [bins, 1, win]
	dftImag *nn.Parameter[B] // [bins, 1, win]
	melFB   *nn.Parameter[B] // [mels, bins]
}

// NewFrontend builds the analysis kernels for hp. hp must be valid.
func NewFrontend[B tensor.Backend](hp Hyperparams, backend B) *Frontend[B] {
	win := hp.WinSamples()
	bins := hp.NumBins()
	hamming := window.Hamming(win)

	re := tensor.Zeros(tensor.Shape{bins, 1, win}, backend)
	im := tensor.Zeros(tensor.Shape{bins, 1, win}, backend)
	reData, imData := re.Data(), im.Data()
	for k := 0; k < bins; k++ {
		for n := 0; n < win; n++ {
			phase := 2 * math.Pi * float64(k*n%hp.NumFFT) / float64(hp.NumFFT)
			reData[k*win+n] = float32(hamming[n] * math.Cos(phase))
			imData[k*win+n] = float32(-hamming[n] * math.Sin(phase))
		}
	}

	fb := tensor.Zeros(tensor.Shape{hp.NumMels, bins}, backend)
	copy(fb.Data(), melFilterbank(hp.NumMels, hp.NumFFT, hp.SampleRate))

	return &Frontend[B]{
		numMels: hp.NumMels,
		hop:     hp.HopSamples(),
		pad:     win / 2,
		dftReal: nn.NewParameter("compute_features.dft_real", nn.KindBuffer, re),
		dftImag: nn.NewParameter("compute_features.dft_imag", nn.KindBuffer, im),
		melFB:   nn.NewParameter("compute_features.mel_fb", nn.KindBuffer, fb),
	}
}

// Spectrum returns the power spectrogram [B, bins, frames] of wav [B, N].
func (f *Frontend[B]) Spectrum(wav *tensor.Tensor[B]) *tensor.Tensor[B] {
	x := wav.Unsqueeze(1)
	re := x.Conv1D(f.dftReal.Tensor(), f.hop, f.pad, 1)
	im := x.Conv1D(f.dftImag.Tensor(), f.hop, f.pad, 1)
	return re.Mul(re).Add(im.Mul(im))
}

// Forward returns features [B, mels, frames] for wav [B, N].
func (f *Frontend[B]) Forward(wav *tensor.Tensor[B]) *tensor.Tensor[B] {
	mel := f.melFB.Tensor().MatMul(f.Spectrum(wav))
	logMel := mel.AddScalar(logFloor).Log()
	return logMel.Sub(logMel.MeanDim(2, true))
}

// NumFrames returns the frame count produced for n samples.
func (f *Frontend[B]) NumFrames(n int) int {
	win := f.dftReal.Shape()[2]
	return (n+2*f.pad-win)/f.hop + 1
}

// Buffers returns the generated analysis tensors. They are not part of
// any checkpoint.
func (f *Frontend[B]) Buffers() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{f.dftReal, f.dftImag, f.melFB}
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank returns row-major [mels, bins] triangular filters spaced
// evenly on the mel scale between 0 Hz and Nyquist.
func melFilterbank(numMels, nfft, sampleRate int) []float32 {
	bins := nfft/2 + 1
	lo, hi := hzToMel(0), hzToMel(float64(sampleRate)/2)

	edges := make([]float64, numMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + float64(i)*(hi-lo)/float64(numMels+1))
	}

	fb := make([]float32, numMels*bins)
	for m := 0; m < numMels; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		for k := 0; k < bins; k++ {
			hz := float64(k) * float64(sampleRate) / float64(nfft)
			var w float64
			switch {
			case hz > left && hz <= center:
				w = (hz - left) / (center - left)
			case hz > center && hz < right:
				w = (right - hz) / (right - center)
			}
			fb[m*bins+k] = float32(w)
		}
	}
	return fb
}
