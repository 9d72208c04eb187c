package export

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/born-ml/spkrec-export/internal/config"
	"github.com/born-ml/spkrec-export/internal/nn"
	"github.com/born-ml/spkrec-export/internal/tensor"
	"github.com/born-ml/spkrec-export/internal/trace"
)

// Tensor names of the exported graph.
const (
	InputName  = "waveform"
	OutputName = "embedding"
)

// DefaultTolerance bounds the max abs difference between the eager output
// and the frozen replay.
const DefaultTolerance = 1e-4

// FreezeOptions configures Freeze.
type FreezeOptions struct {
	Mode      string  // must be config.ModeTrace
	Duration  int     // seconds the graph accepts
	Tolerance float32 // trace check bound; 0 means DefaultTolerance
}

// Frozen is a traced and frozen model ready for export.
type Frozen struct {
	Graph      *trace.Graph
	Eager      *tensor.RawTensor // output of the traced run
	MaxDiff    float32           // trace check result
	SampleRate int
	Duration   int
	Mode       string
	Example    string
}

type parameterized[B tensor.Backend] interface {
	Parameters() []*nn.Parameter[B]
}

type buffered[B tensor.Backend] interface {
	Buffers() []*nn.Parameter[B]
}

// Freeze traces w on the example through backend and freezes the result.
// The wrapped model must live on backend and be in eval mode.
//
// Every weight and buffer becomes a named constant, computations that only
// touch constants are folded, and the frozen graph is replayed on the
// untraced backend and compared with the eager output.
func Freeze[C tensor.Backend](backend *trace.Backend[C], w *Wrapper[*trace.Backend[C]], ex *Example, opts FreezeOptions) (*Frozen, error) {
	switch opts.Mode {
	case config.ModeTrace:
	case config.ModeDynamic:
		return nil, fmt.Errorf("%w: %w: %q capture is not available, use %q", ErrExport, ErrModeUnsupported, opts.Mode, config.ModeTrace)
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrExport, ErrModeUnsupported, opts.Mode)
	}
	if t, ok := w.Model().(nn.Trainable); ok && t.Training() {
		return nil, fmt.Errorf("%w: %w", ErrExport, ErrTrainingMode)
	}

	sr := w.SampleRate()
	want := NumSamples(sr, opts.Duration)
	if ex.SampleRate != sr || len(ex.Samples) != want {
		return nil, fmt.Errorf("%w: %w: example has %d samples at %d Hz, want %d at %d Hz",
			ErrExport, ErrTrace, len(ex.Samples), ex.SampleRate, want, sr)
	}

	tape := backend.Tape()
	nameConstants[*trace.Backend[C]](tape, w.Model())

	x, err := ex.Tensor(backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExport, ErrTrace, err)
	}

	out, err := record(tape, func() (*tensor.RawTensor, error) {
		y, err := w.Forward(tensor.New(x, backend))
		if err != nil {
			return nil, err
		}
		return y.Raw(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	graph, err := trace.Freeze(tape, x, out, trace.IO{Input: InputName, Output: OutputName})
	tape.Clear()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExport, ErrTrace, err)
	}

	tol := opts.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	replay, err := graph.Run(backend.Inner(), x.Clone())
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExport, ErrTraceCheck, err)
	}
	diff, err := maxAbsDiff(out, replay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrExport, ErrTraceCheck, err)
	}
	if diff > tol {
		return nil, fmt.Errorf("%w: %w: max abs diff %g > %g", ErrExport, ErrTraceCheck, diff, tol)
	}

	slog.Info("model frozen",
		"nodes", len(graph.Nodes),
		"constants", len(graph.Constants),
		"params", graph.NumParams(),
		"input", graph.Input.Shape.String(),
		"output", graph.Output.Shape.String(),
		"max_diff", diff)

	return &Frozen{
		Graph:      graph,
		Eager:      out,
		MaxDiff:    diff,
		SampleRate: sr,
		Duration:   opts.Duration,
		Mode:       opts.Mode,
		Example:    ex.Source,
	}, nil
}

// nameConstants registers weights and buffers under their state names.
func nameConstants[B tensor.Backend](tape *trace.Tape, model any) {
	if p, ok := model.(parameterized[B]); ok {
		for _, param := range p.Parameters() {
			tape.NameConstant(param.Tensor().Raw(), param.Name())
		}
	}
	if b, ok := model.(buffered[B]); ok {
		for _, buf := range b.Buffers() {
			tape.NameConstant(buf.Tensor().Raw(), buf.Name())
		}
	}
}

// record runs fn with recording on. Backend panics become ErrTrace.
func record(tape *trace.Tape, fn func() (*tensor.RawTensor, error)) (out *tensor.RawTensor, err error) {
	tape.Clear()
	tape.StartRecording()
	defer tape.StopRecording()
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrTrace, r)
		}
	}()
	return fn()
}

func maxAbsDiff(a, b *tensor.RawTensor) (float32, error) {
	if !a.Shape().Equal(b.Shape()) {
		return 0, fmt.Errorf("shape %v, replay %v", a.Shape(), b.Shape())
	}
	var maxDiff float32
	bd := b.Data()
	for i, v := range a.Data() {
		d := float32(math.Abs(float64(v - bd[i])))
		if math.IsNaN(float64(d)) {
			return 0, fmt.Errorf("NaN at %d", i)
		}
		if d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff, nil
}
