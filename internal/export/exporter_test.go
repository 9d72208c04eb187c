package export

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spkrec-export/internal/onnx"
	"github.com/born-ml/spkrec-export/internal/trace"
)

func TestExport(t *testing.T) {
	frozen := freezeTiny(t, 4, 1)
	path := tempPath(t, "model.onnx")

	exp := NewExporter(ExporterOptions{ModelID: testModel, ProducerVersion: "test"})
	exp.newID = func() uuid.UUID { return uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2") }
	assert.Equal(t, Unexported, exp.State())

	art, err := exp.Export(frozen, path)
	require.NoError(t, err)
	assert.Equal(t, Exported, exp.State())
	assert.Equal(t, path, art.Path)
	assert.Equal(t, "7d444840-9dc0-11d1-b245-5ffdce74fad2", art.ExportID)

	iface, err := Describe(path)
	require.NoError(t, err)
	assert.Equal(t, onnx.Tensor{Name: "waveform", ElemType: onnx.TensorProtoFloat, Dims: []int64{1, 16000}, Static: true}, iface.Input)
	assert.Equal(t, onnx.Tensor{Name: "embedding", ElemType: onnx.TensorProtoFloat, Dims: []int64{1, tinyEmb}, Static: true}, iface.Output)
	assert.Equal(t, int64(14), iface.Opset)
	assert.Equal(t, map[string]string{
		"model_id":         testModel,
		"sample_rate":      "16000",
		"duration_seconds": "1",
		"input_samples":    "16000",
		"export_mode":      "trace",
		"export_id":        art.ExportID,
	}, iface.Metadata)

	model, err := onnx.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(IRVersion), model.IRVersion)
	assert.Equal(t, ProducerName, model.ProducerName)
	assert.Contains(t, model.Graph.DocString, "exactly 16000 samples")

	for i := range model.Graph.ValueInfo {
		assert.True(t, model.Graph.ValueInfo[i].Static(), "value %s", model.Graph.ValueInfo[i].Name)
	}
	last := model.Graph.Nodes[len(model.Graph.Nodes)-1]
	assert.Equal(t, "Squeeze", last.OpType)
	assert.Equal(t, []string{"embedding"}, last.Outputs)
}

func TestExportOnce(t *testing.T) {
	frozen := freezeTiny(t, 4, 1)
	dir := t.TempDir()

	exp := NewExporter(ExporterOptions{ModelID: testModel})
	_, err := exp.Export(frozen, filepath.Join(dir, "a.onnx"))
	require.NoError(t, err)

	_, err = exp.Export(frozen, filepath.Join(dir, "b.onnx"))
	assert.ErrorIs(t, err, ErrExport)

	_, err = NewExporter(ExporterOptions{ModelID: testModel}).Export(frozen, filepath.Join(dir, "c.onnx"))
	assert.ErrorIs(t, err, trace.ErrConsumed)
	assert.False(t, exists(filepath.Join(dir, "c.onnx")))
}

func TestExportWriteFailure(t *testing.T) {
	frozen := freezeTiny(t, 4, 1)
	exp := NewExporter(ExporterOptions{ModelID: testModel})
	_, err := exp.Export(frozen, filepath.Join(t.TempDir(), "missing", "m.onnx"))
	assert.ErrorIs(t, err, ErrExport)
	assert.Equal(t, Unexported, exp.State())
}

func TestExportOverwrites(t *testing.T) {
	path := tempPath(t, "m.onnx")
	for i := 0; i < 2; i++ {
		_, err := NewExporter(ExporterOptions{ModelID: testModel}).Export(freezeTiny(t, 4, 1), path)
		require.NoError(t, err)
	}
	_, err := Describe(path)
	assert.NoError(t, err)
}

func TestLower(t *testing.T) {
	frozen := freezeTiny(t, 4, 1)
	g, err := Lower(frozen.Graph, 14)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, n := range g.Nodes {
		counts[n.OpType]++
	}
	for _, op := range []string{"Conv", "Relu", "Mul", "Add", "Log", "ReduceMean", "Concat", "Softmax", "Tanh", "Sigmoid", "Sqrt", "Transpose", "Squeeze", "MatMul", "Slice"} {
		assert.Positive(t, counts[op], "missing %s", op)
	}

	inits := map[string]onnx.TensorProto{}
	for _, init := range g.Initializers {
		_, dup := inits[init.Name]
		require.False(t, dup, "duplicate initializer %s", init.Name)
		inits[init.Name] = init
	}
	produced := map[string]bool{"waveform": true}
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			_, isInit := inits[in]
			assert.True(t, isInit || produced[in], "%s reads undefined %q", n.Name, in)
		}
		produced[n.Outputs[0]] = true
	}

	first := g.Nodes[0]
	assert.Equal(t, "Unsqueeze", first.OpType)
	axesInit := inits[first.Inputs[1]]
	axes, err := axesInit.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, axes)

	for _, n := range g.Nodes {
		if n.OpType != "Conv" {
			continue
		}
		assert.Len(t, n.AttrInts("kernel_shape"), 1)
		assert.Len(t, n.AttrInts("pads"), 2)
		assert.Equal(t, int64(1), n.AttrInt("group", 0))
	}

	_, err = Lower(frozen.Graph, 18)
	assert.Error(t, err)
	_, err = Lower(frozen.Graph, 0)
	assert.Error(t, err)
}

func TestLowerOps(t *testing.T) {
	tests := []struct {
		node  trace.GraphNode
		types []string
		check func(t *testing.T, g *onnx.GraphProto)
	}{
		{
			node:  trace.GraphNode{Op: trace.OpRsqrt, Inputs: []string{"waveform"}},
			types: []string{"Sqrt", "Reciprocal"},
		},
		{
			node:  trace.GraphNode{Op: trace.OpMulScalar, Inputs: []string{"waveform"}, Attrs: trace.Attrs{Scalar: 2.5}},
			types: []string{"Mul"},
			check: func(t *testing.T, g *onnx.GraphProto) {
				v, err := g.Initializers[0].Float32s()
				require.NoError(t, err)
				assert.Equal(t, []float32{2.5}, v)
				assert.Empty(t, g.Initializers[0].Dims)
			},
		},
		{
			node:  trace.GraphNode{Op: trace.OpMeanDim, Inputs: []string{"waveform"}, Attrs: trace.Attrs{Dim: 1}},
			types: []string{"ReduceMean"},
			check: func(t *testing.T, g *onnx.GraphProto) {
				assert.Equal(t, []int64{1}, g.Nodes[0].AttrInts("axes"))
				assert.Equal(t, int64(0), g.Nodes[0].AttrInt("keepdims", 1))
			},
		},
		{
			node:  trace.GraphNode{Op: trace.OpSumDim, Inputs: []string{"waveform"}, Attrs: trace.Attrs{Dim: 1, KeepDim: true}},
			types: []string{"ReduceSum"},
			check: func(t *testing.T, g *onnx.GraphProto) {
				assert.Len(t, g.Nodes[0].Inputs, 2)
				assert.Equal(t, int64(1), g.Nodes[0].AttrInt("keepdims", 0))
			},
		},
		{
			node:  trace.GraphNode{Op: trace.OpReshape, Inputs: []string{"waveform"}, Attrs: trace.Attrs{Shape: []int{4, 2}}},
			types: []string{"Reshape"},
			check: func(t *testing.T, g *onnx.GraphProto) {
				v, err := g.Initializers[0].Int64s()
				require.NoError(t, err)
				assert.Equal(t, []int64{4, 2}, v)
			},
		},
		{
			node:  trace.GraphNode{Op: trace.OpNarrow, Inputs: []string{"waveform"}, Attrs: trace.Attrs{Dim: 1, Start: 2, Length: 4}},
			types: []string{"Slice"},
			check: func(t *testing.T, g *onnx.GraphProto) {
				require.Len(t, g.Nodes[0].Inputs, 4)
				want := [][]int64{{2}, {6}, {1}}
				for i, init := range g.Initializers {
					assert.Equal(t, g.Nodes[0].Inputs[i+1], init.Name)
					v, err := init.Int64s()
					require.NoError(t, err)
					assert.Equal(t, want[i], v)
				}
			},
		},
		{
			node:  trace.GraphNode{Op: trace.OpTranspose, Inputs: []string{"waveform"}},
			types: []string{"Transpose"},
			check: func(t *testing.T, g *onnx.GraphProto) {
				assert.Equal(t, []int64{1, 0}, g.Nodes[0].AttrInts("perm"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.node.Op.String(), func(t *testing.T) {
			tt.node.Output = value("embedding", 1, 8)
			g := &trace.Graph{
				Input:  value("waveform", 1, 8),
				Output: tt.node.Output,
				Nodes:  []trace.GraphNode{tt.node},
			}
			lowered, err := Lower(g, 14)
			require.NoError(t, err)
			types := make([]string, len(lowered.Nodes))
			for i, n := range lowered.Nodes {
				types[i] = n.OpType
			}
			assert.Equal(t, tt.types, types)
			assert.Equal(t, "embedding", lowered.Nodes[len(lowered.Nodes)-1].Outputs[0])
			if tt.check != nil {
				tt.check(t, lowered)
			}
		})
	}
}

func TestInterfaceMatches(t *testing.T) {
	want := &Interface{
		Input:  onnx.Tensor{Name: "waveform", ElemType: 1, Dims: []int64{1, 48000}, Static: true},
		Output: onnx.Tensor{Name: "embedding", ElemType: 1, Dims: []int64{1, 192}, Static: true},
		Opset:  14,
	}
	tests := []struct {
		name   string
		mutate func(*Interface)
	}{
		{"input name", func(i *Interface) { i.Input.Name = "x" }},
		{"dynamic", func(i *Interface) { i.Input.Static = false }},
		{"output dims", func(i *Interface) { i.Output.Dims = []int64{1, 1, 192} }},
		{"elem type", func(i *Interface) { i.Output.ElemType = 11 }},
		{"opset", func(i *Interface) { i.Opset = 17 }},
	}
	same := *want
	assert.NoError(t, same.Matches(want))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := *want
			tt.mutate(&got)
			assert.ErrorIs(t, got.Matches(want), ErrInterface)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unexported", Unexported.String())
	assert.Equal(t, "exported", Exported.String())
}
