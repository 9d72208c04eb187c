// Package export turns a pretrained speaker encoder into a fixed-shape ONNX
// graph.
//
// The pipeline runs four stages in order: load the model (internal/loader),
// wrap it so its output is always [batch, emb] (Wrapper), trace and freeze
// it on one example clip (Freeze), and serialize the frozen graph (Exporter).
// Pipeline.Run wires them together and checks the toolchain before touching
// the filesystem.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/born-ml/spkrec-export/internal/backend/cpu"
	"github.com/born-ml/spkrec-export/internal/config"
	"github.com/born-ml/spkrec-export/internal/hub"
	"github.com/born-ml/spkrec-export/internal/loader"
	"github.com/born-ml/spkrec-export/internal/onnx"
	"github.com/born-ml/spkrec-export/internal/tensor"
	"github.com/born-ml/spkrec-export/internal/trace"
)

// Pipeline exports one model as configured.
type Pipeline struct {
	Config   *config.Config
	Source   hub.Source // overrides Config.HubURL when set
	Progress io.Writer  // download progress; nil disables it
	Version  string     // producer version written into the artifact
}

// Result summarizes a finished export.
type Result struct {
	Path       string
	ModelID    string
	ExportID   string
	Input      onnx.Tensor
	Output     onnx.Tensor
	Opset      int64
	SampleRate int
	Nodes      int
	Params     int
	MaxDiff    float32
}

// checkToolchain is swapped in tests.
var checkToolchain = config.CheckToolchain

// Run executes the pipeline.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.Config
	if err := checkToolchain(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	device, err := tensor.ParseDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrDevice, err)
	}

	for _, dir := range []string{cfg.ModelsDir, cfg.CacheDir, filepath.Dir(cfg.Output)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", loader.ErrResource, dir, err)
		}
	}

	source, err := p.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrResource, err)
	}

	backend := trace.New(cpu.New())
	model, err := loader.Load(ctx, backend, loader.Options{
		ModelID:  cfg.ModelID,
		CacheDir: cfg.CacheDir,
		Device:   device,
		Source:   source,
		Progress: p.Progress,
	})
	if err != nil {
		return nil, err
	}

	wrapper := Wrap[*trace.Backend[*cpu.CPUBackend]](model.Encoder)
	example, err := p.example(model.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExport, ErrTrace, err)
	}
	slog.Debug("example ready", "source", example.Source, "samples", len(example.Samples))

	frozen, err := Freeze(backend, wrapper, example, FreezeOptions{Mode: cfg.Mode, Duration: cfg.Duration})
	if err != nil {
		return nil, err
	}
	params := frozen.Graph.NumParams()

	exporter := NewExporter(ExporterOptions{ModelID: cfg.ModelID, Opset: cfg.Opset, ProducerVersion: p.Version})
	artifact, err := exporter.Export(frozen, cfg.Output)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:       artifact.Path,
		ModelID:    cfg.ModelID,
		ExportID:   artifact.ExportID,
		Input:      artifact.Iface.Input,
		Output:     artifact.Iface.Output,
		Opset:      artifact.Iface.Opset,
		SampleRate: model.SampleRate,
		Nodes:      artifact.Nodes,
		Params:     params,
		MaxDiff:    frozen.MaxDiff,
	}, nil
}

func (p *Pipeline) source(ctx context.Context) (hub.Source, error) {
	if p.Source != nil {
		return p.Source, nil
	}
	if p.Config.Offline {
		return nil, nil
	}
	return hub.NewSource(ctx, p.Config.HubURL, hub.SourceOptions{
		S3: hub.S3Options{
			Region:    p.Config.S3Region,
			Endpoint:  p.Config.S3Endpoint,
			PathStyle: p.Config.S3PathStyle,
		},
	})
}

func (p *Pipeline) example(sampleRate int) (*Example, error) {
	if p.Config.ExampleWAV != "" {
		return LoadWAV(p.Config.ExampleWAV, sampleRate, p.Config.Duration)
	}
	return RandomExample(sampleRate, p.Config.Duration, p.Config.Seed), nil
}
