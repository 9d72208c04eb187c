// Package loader resolves a pretrained speaker model id into a ready
// encoder.
//
// The weight repository holds two files per model:
//   - hyperparams.yaml: the architecture (speaker.Hyperparams)
//   - embedding_model.safetensors: the checkpoint
//
// Upstream SpeechBrain repositories publish the checkpoint as a PyTorch
// pickle (embedding_model.ckpt), which is not read here. The repository
// must serve a safetensors conversion that keeps the tensor names, e.g.
// blocks.1.res2net_block.blocks.0.conv.conv.weight; SpeechBrainMapper
// renames them to encoder parameters.
//
// Both are fetched through a hub.Cache, so a populated cache needs no
// network. The returned encoder is in eval mode.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/born-ml/spkrec-export/internal/hub"
	"github.com/born-ml/spkrec-export/internal/safetensors"
	"github.com/born-ml/spkrec-export/internal/speaker"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Repository file names.
const (
	HyperparamsFile = "hyperparams.yaml"
	WeightsFile     = "embedding_model.safetensors"

	// PickleWeightsFile is the upstream checkpoint WeightsFile is converted from.
	PickleWeightsFile = "embedding_model.ckpt"
)

var (
	// ErrResource is returned when model files cannot be fetched or
	// decoded.
	ErrResource = errors.New("loader: model resource unavailable")

	// ErrDevice is returned for any execution device other than the CPU.
	ErrDevice = errors.New("loader: only the cpu device is supported")
)

// Options configures Load.
type Options struct {
	ModelID  string
	CacheDir string
	Device   tensor.Device
	Source   hub.Source // nil means cache only
	Progress io.Writer  // download progress; nil disables it
}

// Model is a loaded pretrained encoder.
type Model[B tensor.Backend] struct {
	ID         string
	Encoder    *speaker.Encoder[B]
	SampleRate int
	Format     string // checkpoint naming layout
}

// Load fetches, decodes and assembles the model on backend.
func Load[B tensor.Backend](ctx context.Context, backend B, opts Options) (*Model[B], error) {
	if opts.Device != tensor.CPU || backend.Device() != tensor.CPU {
		return nil, fmt.Errorf("%w: requested %s, backend %s", ErrDevice, opts.Device, backend.Device())
	}
	if err := hub.ValidateModelID(opts.ModelID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}

	cache := hub.NewCache(opts.CacheDir, opts.Source).WithProgress(opts.Progress)

	hpPath, err := cache.Fetch(ctx, opts.ModelID, HyperparamsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	weightsPath, err := cache.Fetch(ctx, opts.ModelID, WeightsFile)
	if errors.Is(err, hub.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w (serve a safetensors conversion of %s with the same tensor names)",
			ErrResource, err, PickleWeightsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}

	//nolint:gosec // G304: path is inside the cache directory.
	hpData, err := os.ReadFile(hpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	hp, err := speaker.ParseHyperparams(hpData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResource, HyperparamsFile, err)
	}

	file, err := safetensors.ReadFile(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResource, WeightsFile, err)
	}
	state, mapper, err := mapState(file, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResource, WeightsFile, err)
	}

	enc, err := speaker.NewEncoder(hp, backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	unexpected, err := enc.LoadStateDict(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResource, WeightsFile, err)
	}
	if len(unexpected) > 0 {
		slog.Warn("ignoring unused checkpoint tensors", "count", len(unexpected), "names", unexpected)
	}
	enc.Eval()

	slog.Info("model loaded",
		"model", opts.ModelID,
		"sample_rate", hp.SampleRate,
		"embedding_dim", hp.LinNeurons,
		"params", enc.NumParams(),
		"format", mapper.Format(),
	)
	return &Model[B]{
		ID:         opts.ModelID,
		Encoder:    enc,
		SampleRate: enc.SampleRate(),
		Format:     mapper.Format(),
	}, nil
}

// mapState decodes every tensor and renames it to encoder names.
func mapState(file *safetensors.File, device tensor.Device) (map[string]*tensor.RawTensor, WeightMapper, error) {
	names := file.Names()
	mapper := DetectMapper(names)

	state := make(map[string]*tensor.RawTensor, len(names))
	for _, name := range names {
		mapped, keep := mapper.MapName(name)
		if !keep {
			continue
		}
		if _, dup := state[mapped]; dup {
			return nil, nil, fmt.Errorf("tensors map to the same name %q", mapped)
		}
		raw, err := file.Tensor(name, device)
		if err != nil {
			return nil, nil, err
		}
		state[mapped] = raw
	}
	return state, mapper, nil
}
