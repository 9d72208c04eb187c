package export

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/born-ml/spkrec-export/internal/config"
	"github.com/born-ml/spkrec-export/internal/onnx"
)

// ProducerName is written into every artifact.
const ProducerName = "spkrec-export"

// State is the exporter lifecycle.
type State int

// Exporter states.
const (
	Unexported State = iota
	Exported
)

func (s State) String() string {
	if s == Exported {
		return "exported"
	}
	return "unexported"
}

// ExporterOptions configures NewExporter.
type ExporterOptions struct {
	ModelID         string
	Opset           int // 0 means config.DefaultOpset
	ProducerVersion string
}

// Exporter serializes one frozen graph to an ONNX file.
type Exporter struct {
	opts  ExporterOptions
	state State
	newID func() uuid.UUID
}

// NewExporter returns an exporter in the Unexported state.
func NewExporter(opts ExporterOptions) *Exporter {
	if opts.Opset == 0 {
		opts.Opset = config.DefaultOpset
	}
	return &Exporter{opts: opts, newID: uuid.New}
}

// State returns the exporter state.
func (e *Exporter) State() State {
	return e.state
}

// Artifact describes a written model file.
type Artifact struct {
	Path     string
	ExportID string
	Iface    *Interface
	Nodes    int
}

// Export lowers the frozen graph, writes it to path (overwriting any
// existing file) and verifies the written interface. The graph is consumed
// even when writing fails; an exporter exports once.
func (e *Exporter) Export(f *Frozen, path string) (*Artifact, error) {
	if e.state == Exported {
		return nil, fmt.Errorf("%w: exporter already used", ErrExport)
	}
	if err := f.Graph.Consume(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	graph, err := Lower(f.Graph, e.opts.Opset)
	if err != nil {
		return nil, fmt.Errorf("%w: lower: %w", ErrExport, err)
	}

	samples := NumSamples(f.SampleRate, f.Duration)
	graph.DocString = fmt.Sprintf(
		"Input %s: float32 [1, %d] mono audio at %d Hz (%d s). Pad shorter clips with trailing zeros "+
			"and truncate longer clips to exactly %d samples. Output %s: float32 %v.",
		InputName, samples, f.SampleRate, f.Duration, samples, OutputName, f.Graph.Output.Shape)

	id := e.newID().String()
	model := &onnx.ModelProto{
		IRVersion:       IRVersion,
		ProducerName:    ProducerName,
		ProducerVersion: e.opts.ProducerVersion,
		OpsetImport:     []onnx.OperatorSetID{{Domain: "", Version: int64(e.opts.Opset)}},
		Graph:           graph,
	}
	model.SetMetadata(map[string]string{
		"model_id":         e.opts.ModelID,
		"sample_rate":      strconv.Itoa(f.SampleRate),
		"duration_seconds": strconv.Itoa(f.Duration),
		"input_samples":    strconv.Itoa(samples),
		"export_mode":      f.Mode,
		"export_id":        id,
	})

	if err := onnx.WriteFile(path, model); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrExport, path, err)
	}
	e.state = Exported

	want := &Interface{
		Input:  onnx.Tensor{Name: InputName, ElemType: onnx.TensorProtoFloat, Dims: f.Graph.Input.Shape.Int64s(), Static: true},
		Output: onnx.Tensor{Name: OutputName, ElemType: onnx.TensorProtoFloat, Dims: f.Graph.Output.Shape.Int64s(), Static: true},
		Opset:  int64(e.opts.Opset),
	}
	got, err := Describe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := got.Matches(want); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	slog.Info("model exported",
		"path", path,
		"opset", e.opts.Opset,
		"nodes", len(graph.Nodes),
		"initializers", len(graph.Initializers),
		"export_id", id)

	return &Artifact{Path: path, ExportID: id, Iface: got, Nodes: len(graph.Nodes)}, nil
}

// Interface is the declared contract of an exported artifact.
type Interface struct {
	Input    onnx.Tensor
	Output   onnx.Tensor
	Opset    int64
	Metadata map[string]string
}

// Describe reads the artifact at path and returns its single input and
// output.
func Describe(path string) (*Interface, error) {
	info, err := onnx.InspectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterface, err)
	}
	if len(info.Inputs) != 1 || len(info.Outputs) != 1 {
		return nil, fmt.Errorf("%w: %d inputs and %d outputs, want 1 and 1", ErrInterface, len(info.Inputs), len(info.Outputs))
	}
	return &Interface{
		Input:    info.Inputs[0],
		Output:   info.Outputs[0],
		Opset:    info.OpsetVersion,
		Metadata: info.Metadata,
	}, nil
}

// Matches reports the first difference between i and want. Metadata is not
// compared.
func (i *Interface) Matches(want *Interface) error {
	check := func(role string, got, want onnx.Tensor) error {
		switch {
		case got.Name != want.Name:
			return fmt.Errorf("%w: %s named %q, want %q", ErrInterface, role, got.Name, want.Name)
		case got.ElemType != want.ElemType:
			return fmt.Errorf("%w: %s element type %d, want %d", ErrInterface, role, got.ElemType, want.ElemType)
		case !got.Static:
			return fmt.Errorf("%w: %s has dynamic axes", ErrInterface, role)
		case !slices.Equal(got.Dims, want.Dims):
			return fmt.Errorf("%w: %s shape %v, want %v", ErrInterface, role, got.Dims, want.Dims)
		}
		return nil
	}
	if err := check("input", i.Input, want.Input); err != nil {
		return err
	}
	if err := check("output", i.Output, want.Output); err != nil {
		return err
	}
	if i.Opset != want.Opset {
		return fmt.Errorf("%w: opset %d, want %d", ErrInterface, i.Opset, want.Opset)
	}
	return nil
}
