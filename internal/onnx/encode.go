package onnx

import (
	"math"
	"os"

	"go.uber.org/multierr"
	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes the model in protobuf wire format.
func (m *ModelProto) Marshal() []byte {
	return m.appendTo(nil)
}

// WriteFile encodes the model to path, replacing any existing file.
func WriteFile(path string, m *ModelProto) (err error) {
	//nolint:gosec // G304: caller-chosen output path.
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	_, err = f.Write(m.Marshal())
	return err
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendNonZero(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	return appendVarint(b, num, uint64(v))
}

// appendMessage writes a length-delimited sub-message built by fn.
func appendMessage(b []byte, num protowire.Number, fn func([]byte) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, fn(nil))
}

func appendPackedInt64s(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func (m *ModelProto) appendTo(b []byte) []byte {
	b = appendNonZero(b, 1, m.IRVersion)
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	b = appendNonZero(b, 5, m.ModelVersion)
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, m.Graph.appendTo)
	}
	for i := range m.OpsetImport {
		b = appendMessage(b, 8, m.OpsetImport[i].appendTo)
	}
	for i := range m.MetadataProps {
		b = appendMessage(b, 14, m.MetadataProps[i].appendTo)
	}
	return b
}

func (g *GraphProto) appendTo(b []byte) []byte {
	for i := range g.Nodes {
		b = appendMessage(b, 1, g.Nodes[i].appendTo)
	}
	b = appendString(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessage(b, 5, g.Initializers[i].appendTo)
	}
	b = appendString(b, 10, g.DocString)
	for i := range g.Inputs {
		b = appendMessage(b, 11, g.Inputs[i].appendTo)
	}
	for i := range g.Outputs {
		b = appendMessage(b, 12, g.Outputs[i].appendTo)
	}
	for i := range g.ValueInfo {
		b = appendMessage(b, 13, g.ValueInfo[i].appendTo)
	}
	return b
}

func (n *NodeProto) appendTo(b []byte) []byte {
	// Empty names mark omitted optional inputs and must be kept.
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, n.Name)
	b = appendString(b, 4, n.OpType)
	for i := range n.Attributes {
		b = appendMessage(b, 5, n.Attributes[i].appendTo)
	}
	b = appendString(b, 6, n.DocString)
	return appendString(b, 7, n.Domain)
}

func (a *AttributeProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = appendVarint(b, 3, uint64(a.I))
	case AttributeProtoString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = appendMessage(b, 5, a.T.appendTo)
		}
	case AttributeProtoFloats:
		b = appendPackedFloats(b, 7, a.Floats)
	case AttributeProtoInts:
		b = appendPackedInt64s(b, 8, a.Ints)
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = protowire.AppendTag(b, 9, protowire.BytesType)
			b = protowire.AppendBytes(b, s)
		}
	}
	b = appendString(b, 13, a.DocString)
	return appendVarint(b, 20, uint64(a.Type))
}

func (t *TensorProto) appendTo(b []byte) []byte {
	b = appendPackedInt64s(b, 1, t.Dims)
	b = appendVarint(b, 2, uint64(t.DataType))
	b = appendPackedFloats(b, 4, t.FloatData)
	b = appendPackedInt32s(b, 5, t.Int32Data)
	b = appendPackedInt64s(b, 7, t.Int64Data)
	b = appendString(b, 8, t.Name)
	b = appendBytes(b, 9, t.RawData)
	return appendString(b, 12, t.DocString)
}

func (v *ValueInfoProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, v.Name)
	if v.Type != nil {
		b = appendMessage(b, 2, v.Type.appendTo)
	}
	return appendString(b, 3, v.DocString)
}

func (t *TypeProto) appendTo(b []byte) []byte {
	if t.TensorType != nil {
		b = appendMessage(b, 1, t.TensorType.appendTo)
	}
	return b
}

func (t *TensorTypeProto) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(t.ElemType))
	if t.Shape != nil {
		b = appendMessage(b, 2, t.Shape.appendTo)
	}
	return b
}

func (s *TensorShapeProto) appendTo(b []byte) []byte {
	for i := range s.Dims {
		b = appendMessage(b, 1, s.Dims[i].appendTo)
	}
	return b
}

func (d *DimensionProto) appendTo(b []byte) []byte {
	// dim_value and dim_param are a oneof; a zero size is still written.
	if d.DimParam != "" {
		return appendString(b, 2, d.DimParam)
	}
	return appendVarint(b, 1, uint64(d.DimValue))
}

func (o *OperatorSetID) appendTo(b []byte) []byte {
	b = appendString(b, 1, o.Domain)
	return appendVarint(b, 2, uint64(o.Version))
}

func (e *StringStringEntry) appendTo(b []byte) []byte {
	b = appendString(b, 1, e.Key)
	return appendString(b, 2, e.Value)
}
