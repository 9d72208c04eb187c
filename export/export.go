// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package export converts a pretrained speaker-embedding model into a
// fixed-shape ONNX graph.
//
// The exported graph takes one input, "waveform" of shape
// [1, sample_rate * Duration] with Duration fixed at 3 s, and returns one
// output, "embedding" of shape [1, emb]. Callers must pad or truncate clips
// to the exact input length (see Conform) before inference.
//
// # Example Usage
//
//	cfg, err := export.LoadConfig(".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := export.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Path, res.Input.Dims, res.Output.Dims)
package export

import (
	"context"
	"io"

	"github.com/born-ml/spkrec-export/internal/config"
	internalexport "github.com/born-ml/spkrec-export/internal/export"
	"github.com/born-ml/spkrec-export/internal/loader"
)

// Config is the exporter configuration.
type Config = config.Config

// Result summarizes a finished export.
type Result = internalexport.Result

// Interface is the declared input and output of an artifact.
type Interface = internalexport.Interface

// Export modes.
const (
	ModeTrace   = config.ModeTrace
	ModeDynamic = config.ModeDynamic
)

// Toolchain is the Go minor version exports must run under.
const Toolchain = config.Toolchain

// Duration is the fixed input length in seconds.
const Duration = config.DefaultDuration

// Tensor names of the exported graph.
const (
	InputName  = internalexport.InputName
	OutputName = internalexport.OutputName
)

// Errors, grouped by failure kind. Test with errors.Is.
var (
	// ErrToolchain: the running Go toolchain is not the pinned one.
	ErrToolchain = config.ErrToolchain
	// ErrResource: model files could not be fetched or decoded.
	ErrResource = loader.ErrResource
	// ErrExport: tracing, freezing or serialization failed.
	ErrExport = internalexport.ErrExport

	ErrInvalidConfig   = config.ErrInvalid
	ErrModeUnsupported = internalexport.ErrModeUnsupported
	ErrUnexpectedRank  = internalexport.ErrUnexpectedRank
	ErrTrainingMode    = internalexport.ErrTrainingMode
	ErrTraceCheck      = internalexport.ErrTraceCheck
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads environment variables, optionally from envFile, on top
// of the defaults.
func LoadConfig(envFile string) (*Config, error) {
	return config.Load(envFile)
}

// Options tune Run beyond the configuration.
type Options struct {
	Progress io.Writer // download progress bar; nil disables it
	Version  string    // producer version recorded in the artifact
}

// Run checks the toolchain, loads the model, traces, freezes and writes
// the ONNX artifact to cfg.Output.
func Run(ctx context.Context, cfg *Config, opts ...Options) (*Result, error) {
	p := &internalexport.Pipeline{Config: cfg}
	for _, o := range opts {
		p.Progress = o.Progress
		p.Version = o.Version
	}
	return p.Run(ctx)
}

// Describe reads an artifact's declared input and output.
func Describe(path string) (*Interface, error) {
	return internalexport.Describe(path)
}

// Conform pads with trailing zeros or truncates samples to exactly n.
func Conform(samples []float32, n int) []float32 {
	return internalexport.Conform(samples, n)
}

// ArtifactName derives the artifact file name from a model id.
func ArtifactName(modelID string) string {
	return config.OutputName(modelID)
}

// NumSamples is the fixed input length for seconds of audio at sampleRate.
func NumSamples(sampleRate, seconds int) int {
	return internalexport.NumSamples(sampleRate, seconds)
}
