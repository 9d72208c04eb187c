package export

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
	"go.uber.org/multierr"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Example is the concrete input used to trace the model: a mono clip of
// exactly SampleRate*Duration samples.
type Example struct {
	Samples    []float32
	SampleRate int
	Duration   int    // seconds
	Source     string // "randn(seed=N)" or the WAV path
}

// NumSamples is the fixed input length for a clip of seconds at sampleRate.
func NumSamples(sampleRate, seconds int) int {
	return sampleRate * seconds
}

// RandomExample draws a standard normal clip from a seeded source.
func RandomExample(sampleRate, seconds int, seed uint64) *Example {
	n := NumSamples(sampleRate, seconds)
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(dist.Rand())
	}
	return &Example{
		Samples:    samples,
		SampleRate: sampleRate,
		Duration:   seconds,
		Source:     fmt.Sprintf("randn(seed=%d)", seed),
	}
}

// LoadWAV reads a PCM WAV clip, mixes it down to mono, scales it to
// [-1, 1) and conforms it to the fixed length. The file must already be at
// sampleRate.
func LoadWAV(path string, sampleRate, seconds int) (ex *Example, err error) {
	//nolint:gosec // G304: user-supplied example clip.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open example: %w", err)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("example %s: not a PCM WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode example: %w", err)
	}
	if int(dec.SampleRate) != sampleRate {
		return nil, fmt.Errorf("example %s: sample rate %d, model expects %d", path, dec.SampleRate, sampleRate)
	}
	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, errors.New("example: no channels")
	}
	if dec.BitDepth < 8 || dec.BitDepth > 32 {
		return nil, fmt.Errorf("example %s: unsupported bit depth %d", path, dec.BitDepth)
	}

	scale := float32(int64(1) << (dec.BitDepth - 1))
	mono := make([]float32, len(buf.Data)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c])
		}
		mono[i] = sum / float32(channels) / scale
	}

	return &Example{
		Samples:    Conform(mono, NumSamples(sampleRate, seconds)),
		SampleRate: sampleRate,
		Duration:   seconds,
		Source:     path,
	}, nil
}

// Conform returns exactly n samples: longer clips are truncated, shorter
// ones padded with trailing zeros. Consumers of the exported graph apply
// the same rule before inference.
func Conform(samples []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, samples)
	return out
}

// Tensor returns the clip as a [1, samples] tensor on backend.
func (e *Example) Tensor(backend tensor.Backend) (*tensor.RawTensor, error) {
	return tensor.FromFloat32(e.Samples, tensor.Shape{1, len(e.Samples)}, backend.Device())
}
