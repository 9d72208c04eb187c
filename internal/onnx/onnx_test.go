package onnx

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// buildModel returns y = ReduceMean(Conv(x, w) + b) with every attribute
// kind the writer knows.
func buildModel() *ModelProto {
	m := &ModelProto{
		IRVersion:       7,
		ProducerName:    "spkrec-export",
		ProducerVersion: "test",
		DocString:       "model doc",
		OpsetImport:     []OperatorSetID{{Version: 14}},
		Graph: &GraphProto{
			Name:      "g",
			DocString: "pad or truncate to 8 samples",
			Nodes: []NodeProto{
				{
					Name: "conv_0", OpType: "Conv",
					Inputs: []string{"x", "w", ""}, Outputs: []string{"c"},
					Attributes: []AttributeProto{
						AttrInts("kernel_shape", 3),
						AttrInts("pads", 1, 1),
						AttrInt("group", 1),
					},
				},
				{Name: "add_0", OpType: "Add", Inputs: []string{"c", "b"}, Outputs: []string{"a"}},
				{
					Name: "mean_0", OpType: "ReduceMean",
					Inputs: []string{"a"}, Outputs: []string{"y"},
					Attributes: []AttributeProto{
						AttrInts("axes", 2),
						AttrInt("keepdims", 0),
						AttrFloat("alpha", 0),
						AttrString("mode", "x"),
						AttrTensor("value", NewFloatTensor("", nil, []float32{1.5})),
					},
					DocString: "reduce",
				},
			},
			Initializers: []TensorProto{
				NewFloatTensor("w", []int64{2, 1, 3}, []float32{1, 2, 3, -1, -2, -3}),
				NewFloatTensor("b", []int64{1, 2, 1}, []float32{0.5, -0.5}),
				NewInt64Tensor("shape", []int64{2}, []int64{1, -1}),
			},
			Inputs:  []ValueInfoProto{NewTensorValueInfo("x", TensorProtoFloat, []int64{1, 1, 8})},
			Outputs: []ValueInfoProto{NewTensorValueInfo("y", TensorProtoFloat, []int64{1, 2})},
		},
	}
	m.SetMetadata(map[string]string{"sample_rate": "16000", "model_id": "a/b"})
	return m
}

func TestMarshalParseRoundTrip(t *testing.T) {
	want := buildModel()
	got, err := Parse(want.Marshal())
	require.NoError(t, err)

	assert.Equal(t, want.IRVersion, got.IRVersion)
	assert.Equal(t, want.ProducerName, got.ProducerName)
	assert.Equal(t, want.ProducerVersion, got.ProducerVersion)
	assert.Equal(t, want.DocString, got.DocString)
	assert.Equal(t, want.OpsetImport, got.OpsetImport)
	assert.Equal(t, want.MetadataProps, got.MetadataProps)
	require.NotNil(t, got.Graph)
	assert.Equal(t, want.Graph.Name, got.Graph.Name)
	assert.Equal(t, want.Graph.DocString, got.Graph.DocString)
	assert.Equal(t, want.Graph.Nodes, got.Graph.Nodes)
	assert.Equal(t, want.Graph.Initializers, got.Graph.Initializers)
	assert.Equal(t, want.Graph.Inputs, got.Graph.Inputs)
	assert.Equal(t, want.Graph.Outputs, got.Graph.Outputs)
}

func TestZeroValuedAttributesSurvive(t *testing.T) {
	got, err := Parse(buildModel().Marshal())
	require.NoError(t, err)

	mean := got.Graph.Nodes[2]
	a, ok := mean.Attr("keepdims")
	require.True(t, ok, "keepdims=0 must be written")
	assert.Equal(t, int32(AttributeProtoInt), a.Type)
	assert.Equal(t, int64(0), mean.AttrInt("keepdims", 1))
	assert.Equal(t, []int64{2}, mean.AttrInts("axes"))
	assert.Equal(t, int64(7), mean.AttrInt("missing", 7))
	assert.Nil(t, mean.AttrInts("missing"))

	f, ok := mean.Attr("alpha")
	require.True(t, ok)
	assert.Equal(t, int32(AttributeProtoFloat), f.Type)
	assert.Zero(t, f.F)

	// Omitted optional input keeps its slot.
	assert.Equal(t, []string{"x", "w", ""}, got.Graph.Nodes[0].Inputs)
}

func TestZeroDimIsWritten(t *testing.T) {
	v := NewTensorValueInfo("e", TensorProtoFloat, []int64{0, 4})
	m := &ModelProto{Graph: &GraphProto{Outputs: []ValueInfoProto{v}}}
	got, err := Parse(m.Marshal())
	require.NoError(t, err)

	dims, ok := got.Graph.Outputs[0].Dims()
	require.True(t, ok)
	assert.Equal(t, []int64{0, 4}, dims)
	assert.True(t, got.Graph.Outputs[0].Static())
}

func TestParseAcceptsUnpackedAndSkipsUnknown(t *testing.T) {
	// TensorProto with unpacked dims and float_data plus an unknown field.
	var tensor []byte
	for _, d := range []uint64{1, 2} {
		tensor = protowire.AppendTag(tensor, 1, protowire.VarintType)
		tensor = protowire.AppendVarint(tensor, d)
	}
	tensor = protowire.AppendTag(tensor, 2, protowire.VarintType)
	tensor = protowire.AppendVarint(tensor, TensorProtoFloat)
	for _, v := range []float32{0.25, -4} {
		tensor = protowire.AppendTag(tensor, 4, protowire.Fixed32Type)
		tensor = protowire.AppendFixed32(tensor, math.Float32bits(v))
	}
	tensor = protowire.AppendTag(tensor, 8, protowire.BytesType)
	tensor = protowire.AppendString(tensor, "t")
	tensor = protowire.AppendTag(tensor, 99, protowire.Fixed64Type)
	tensor = protowire.AppendFixed64(tensor, 42)

	var graph []byte
	graph = protowire.AppendTag(graph, 5, protowire.BytesType)
	graph = protowire.AppendBytes(graph, tensor)
	graph = protowire.AppendTag(graph, 42, protowire.BytesType)
	graph = protowire.AppendString(graph, "ignored")

	var model []byte
	model = protowire.AppendTag(model, 1, protowire.VarintType)
	model = protowire.AppendVarint(model, 8)
	model = protowire.AppendTag(model, 7, protowire.BytesType)
	model = protowire.AppendBytes(model, graph)

	got, err := Parse(model)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.IRVersion)
	require.Len(t, got.Graph.Initializers, 1)
	init := got.Graph.Initializers[0]
	assert.Equal(t, "t", init.Name)
	assert.Equal(t, []int64{1, 2}, init.Dims)
	data, err := init.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -4}, data)
}

func TestParseMalformed(t *testing.T) {
	full := buildModel().Marshal()

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", full[:len(full)-3]},
		{"bad tag", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"graph as varint", protowire.AppendVarint(protowire.AppendTag(nil, 7, protowire.VarintType), 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestTensorHelpers(t *testing.T) {
	f := NewFloatTensor("f", []int64{2, 2}, []float32{1, 2, 3, 4})
	data, err := f.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, data)
	assert.Equal(t, int64(4), f.NumElements())
	_, err = f.Int64s()
	assert.Error(t, err)

	scalar := NewFloatTensor("s", nil, []float32{3})
	assert.Equal(t, int64(1), scalar.NumElements())

	i := NewInt64Tensor("i", []int64{3}, []int64{-1, 0, 1 << 40})
	ints, err := i.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, 0, 1 << 40}, ints)

	bad := NewFloatTensor("bad", []int64{3}, []float32{1, 2})
	_, err = bad.Float32s()
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	m := buildModel()
	// Initializers listed as inputs (IR < 4 style) are not real inputs.
	m.Graph.Inputs = append(m.Graph.Inputs, NewTensorValueInfo("w", TensorProtoFloat, []int64{2, 1, 3}))

	info := Inspect(m)
	assert.Equal(t, int64(14), info.OpsetVersion)
	require.Len(t, info.Inputs, 1)
	assert.Equal(t, Tensor{Name: "x", ElemType: TensorProtoFloat, Dims: []int64{1, 1, 8}, Static: true}, info.Inputs[0])
	require.Len(t, info.Outputs, 1)
	assert.Equal(t, []int64{1, 2}, info.Outputs[0].Dims)
	assert.Equal(t, 3, info.NodeCount)
	assert.Equal(t, 3, info.WeightCount)
	assert.Equal(t, map[string]int{"Conv": 1, "Add": 1, "ReduceMean": 1}, info.OpCounts)
	assert.Equal(t, "16000", info.Metadata["sample_rate"])
	assert.Equal(t, "pad or truncate to 8 samples", info.DocString)
}

func TestSymbolicDims(t *testing.T) {
	v := NewTensorValueInfo("x", TensorProtoFloat, []int64{1, 8})
	v.Type.TensorType.Shape.Dims[0] = DimensionProto{DimParam: "batch"}
	dims, ok := v.Dims()
	require.True(t, ok)
	assert.Equal(t, []int64{-1, 8}, dims)
	assert.False(t, v.Static())

	var empty ValueInfoProto
	_, ok = empty.Dims()
	assert.False(t, ok)
}

func TestWriteFileParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.onnx")
	require.NoError(t, WriteFile(path, buildModel()))
	// Overwrite.
	require.NoError(t, WriteFile(path, buildModel()))

	info, err := InspectFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", info.Inputs[0].Name)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.onnx"))
	assert.Error(t, err)
	assert.Error(t, WriteFile(filepath.Join(t.TempDir(), "no", "dir.onnx"), buildModel()))
}

func TestSetMetadataSorted(t *testing.T) {
	m := &ModelProto{}
	m.SetMetadata(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, []StringStringEntry{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, m.MetadataProps)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, m.Metadata())
	assert.Zero(t, m.Opset())
}
