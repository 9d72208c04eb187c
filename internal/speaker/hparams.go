package speaker

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidHyperparams is returned for hyperparameters that cannot build
// an encoder.
var ErrInvalidHyperparams = errors.New("speaker: invalid hyperparameters")

// Hyperparams describes the encoder architecture and its front-end.
// It is read from hyperparams.yaml next to the weights.
type Hyperparams struct {
	SampleRate int `yaml:"sample_rate"`
	NumMels    int `yaml:"n_mels"`
	NumFFT     int `yaml:"n_fft"`
	WinLength  int `yaml:"win_length"` // milliseconds
	HopLength  int `yaml:"hop_length"` // milliseconds

	// Channels, KernelSizes and Dilations describe the TDNN stack: the
	// first entry is the input block, the last the MFA block and the ones
	// in between are SE-Res2Net blocks.
	Channels    []int `yaml:"channels"`
	KernelSizes []int `yaml:"kernel_sizes"`
	Dilations   []int `yaml:"dilations"`

	Res2NetScale      int     `yaml:"res2net_scale"`
	AttentionChannels int     `yaml:"attention_channels"`
	SEChannels        int     `yaml:"se_channels"`
	LinNeurons        int     `yaml:"lin_neurons"`
	Dropout           float64 `yaml:"dropout"`
}

// DefaultHyperparams returns the spkrec-ecapa-voxceleb architecture.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		SampleRate:        16000,
		NumMels:           80,
		NumFFT:            400,
		WinLength:         25,
		HopLength:         10,
		Channels:          []int{1024, 1024, 1024, 1024, 3072},
		KernelSizes:       []int{5, 3, 3, 3, 1},
		Dilations:         []int{1, 2, 3, 4, 1},
		Res2NetScale:      8,
		AttentionChannels: 128,
		SEChannels:        128,
		LinNeurons:        192,
	}
}

// ParseHyperparams decodes YAML on top of DefaultHyperparams and validates
// the result. Keys absent from data keep their defaults.
func ParseHyperparams(data []byte) (Hyperparams, error) {
	hp := DefaultHyperparams()
	if err := yaml.Unmarshal(data, &hp); err != nil {
		return Hyperparams{}, fmt.Errorf("%w: %w", ErrInvalidHyperparams, err)
	}
	if err := hp.Validate(); err != nil {
		return Hyperparams{}, err
	}
	return hp, nil
}

// Validate checks that the hyperparameters describe a buildable encoder.
func (hp Hyperparams) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidHyperparams, fmt.Sprintf(format, args...))
	}

	switch {
	case hp.SampleRate <= 0:
		return invalid("sample_rate must be positive, got %d", hp.SampleRate)
	case hp.NumMels <= 0:
		return invalid("n_mels must be positive, got %d", hp.NumMels)
	case hp.HopSamples() <= 0:
		return invalid("hop_length of %d ms is shorter than one sample", hp.HopLength)
	case hp.WinSamples() <= 0:
		return invalid("win_length of %d ms is shorter than one sample", hp.WinLength)
	case hp.WinSamples() > hp.NumFFT:
		return invalid("window of %d samples exceeds n_fft %d", hp.WinSamples(), hp.NumFFT)
	case len(hp.Channels) < 3:
		return invalid("need at least 3 blocks, got %d", len(hp.Channels))
	case len(hp.KernelSizes) != len(hp.Channels) || len(hp.Dilations) != len(hp.Channels):
		return invalid("channels, kernel_sizes and dilations differ in length (%d, %d, %d)",
			len(hp.Channels), len(hp.KernelSizes), len(hp.Dilations))
	case hp.AttentionChannels <= 0 || hp.SEChannels <= 0 || hp.LinNeurons <= 0:
		return invalid("attention_channels, se_channels and lin_neurons must be positive")
	case hp.Res2NetScale <= 0:
		return invalid("res2net_scale must be positive, got %d", hp.Res2NetScale)
	case hp.Dropout < 0 || hp.Dropout >= 1:
		return invalid("dropout must be in [0, 1), got %v", hp.Dropout)
	}

	for i, c := range hp.Channels {
		if c <= 0 {
			return invalid("channels[%d] must be positive, got %d", i, c)
		}
		if k := hp.KernelSizes[i]; k <= 0 || k%2 == 0 {
			return invalid("kernel_sizes[%d] must be odd and positive, got %d", i, k)
		}
		if hp.Dilations[i] <= 0 {
			return invalid("dilations[%d] must be positive, got %d", i, hp.Dilations[i])
		}
	}
	for i := 2; i < len(hp.Channels)-1; i++ {
		if hp.Channels[i] != hp.Channels[1] {
			return invalid("residual blocks need equal channels, got %v", hp.Channels[1:len(hp.Channels)-1])
		}
	}
	if hp.Channels[1]%hp.Res2NetScale != 0 {
		return invalid("residual channels %d are not divisible by res2net_scale %d", hp.Channels[1], hp.Res2NetScale)
	}
	if hp.Channels[0] != hp.Channels[1] {
		return invalid("residual input needs channels[0] == channels[1], got %d and %d", hp.Channels[0], hp.Channels[1])
	}
	return nil
}

// WinSamples returns the analysis window length in samples.
func (hp Hyperparams) WinSamples() int {
	return hp.SampleRate * hp.WinLength / 1000
}

// HopSamples returns the frame shift in samples.
func (hp Hyperparams) HopSamples() int {
	return hp.SampleRate * hp.HopLength / 1000
}

// NumBins returns the number of one-sided frequency bins.
func (hp Hyperparams) NumBins() int {
	return hp.NumFFT/2 + 1
}
