// Package onnx reads and writes ONNX model files.
//
// The message types mirror onnx.proto and are encoded and decoded with
// google.golang.org/protobuf/encoding/protowire, so no generated code is
// needed. Only the fields an inference graph uses are modeled; unknown
// fields are skipped on decode.
//
//	model, err := onnx.ParseFile("models/spkrec-ecapa-voxceleb.onnx")
//	info := onnx.Inspect(model)
//	fmt.Println(info.Inputs[0].Name, info.Inputs[0].Dims)
package onnx

// ModelProto is the top-level ONNX model.
type ModelProto struct {
	IRVersion       int64               // 1
	ProducerName    string              // 2
	ProducerVersion string              // 3
	Domain          string              // 4
	ModelVersion    int64               // 5
	DocString       string              // 6
	Graph           *GraphProto         // 7
	OpsetImport     []OperatorSetID     // 8
	MetadataProps   []StringStringEntry // 14
}

// GraphProto is the computation graph.
type GraphProto struct {
	Nodes        []NodeProto      // 1
	Name         string           // 2
	Initializers []TensorProto    // 5
	DocString    string           // 10
	Inputs       []ValueInfoProto // 11
	Outputs      []ValueInfoProto // 12
	ValueInfo    []ValueInfoProto // 13
}

// NodeProto is one operation.
type NodeProto struct {
	Inputs     []string         // 1
	Outputs    []string         // 2
	Name       string           // 3
	OpType     string           // 4
	Attributes []AttributeProto // 5
	DocString  string           // 6
	Domain     string           // 7
}

// AttributeProto is a named node attribute. Type selects which value
// field is meaningful.
type AttributeProto struct {
	Name      string       // 1
	F         float32      // 2
	I         int64        // 3
	S         []byte       // 4
	T         *TensorProto // 5
	Floats    []float32    // 7
	Ints      []int64      // 8
	Strings   [][]byte     // 9
	DocString string       // 13
	Type      int32        // 20
}

// TensorProto is a constant tensor.
type TensorProto struct {
	Dims      []int64   // 1
	DataType  int32     // 2
	FloatData []float32 // 4
	Int32Data []int32   // 5
	Int64Data []int64   // 7
	Name      string    // 8
	RawData   []byte    // 9
	DocString string    // 12
}

// ValueInfoProto names a graph value and its type.
type ValueInfoProto struct {
	Name      string     // 1
	Type      *TypeProto // 2
	DocString string     // 3
}

// TypeProto wraps a tensor type.
type TypeProto struct {
	TensorType *TensorTypeProto // 1
}

// TensorTypeProto is an element type plus a shape.
type TensorTypeProto struct {
	ElemType int32             // 1
	Shape    *TensorShapeProto // 2
}

// TensorShapeProto lists dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto // 1
}

// DimensionProto is a fixed size or a symbolic name.
type DimensionProto struct {
	DimValue int64  // 1
	DimParam string // 2
}

// OperatorSetID pins an operator set version.
type OperatorSetID struct {
	Domain  string // 1
	Version int64  // 2
}

// StringStringEntry is one metadata property.
type StringStringEntry struct {
	Key   string // 1
	Value string // 2
}

// TensorProto.DataType values.
const (
	TensorProtoUndefined = 0
	TensorProtoFloat     = 1
	TensorProtoUint8     = 2
	TensorProtoInt8      = 3
	TensorProtoInt32     = 6
	TensorProtoInt64     = 7
	TensorProtoBool      = 9
	TensorProtoFloat16   = 10
	TensorProtoDouble    = 11
)

// AttributeProto.Type values.
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1
	AttributeProtoInt       = 2
	AttributeProtoString    = 3
	AttributeProtoTensor    = 4
	AttributeProtoFloats    = 6
	AttributeProtoInts      = 7
	AttributeProtoStrings   = 8
)
