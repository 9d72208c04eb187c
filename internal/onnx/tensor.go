package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NewFloatTensor builds a float32 initializer stored as little-endian raw_data.
func NewFloatTensor(name string, dims []int64, data []float32) TensorProto {
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return TensorProto{
		Name:     name,
		Dims:     append([]int64(nil), dims...),
		DataType: TensorProtoFloat,
		RawData:  raw,
	}
}

// NewInt64Tensor builds an int64 initializer stored as little-endian raw_data.
func NewInt64Tensor(name string, dims []int64, data []int64) TensorProto {
	raw := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[8*i:], uint64(v))
	}
	return TensorProto{
		Name:     name,
		Dims:     append([]int64(nil), dims...),
		DataType: TensorProtoInt64,
		RawData:  raw,
	}
}

// NumElements is the product of Dims; a rank-0 tensor has one element.
func (t *TensorProto) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Float32s returns the tensor data of a float tensor from either
// raw_data or float_data.
func (t *TensorProto) Float32s() ([]float32, error) {
	if t.DataType != TensorProtoFloat {
		return nil, fmt.Errorf("onnx: tensor %q: data type %d is not float", t.Name, t.DataType)
	}
	if len(t.RawData) == 0 {
		if int64(len(t.FloatData)) != t.NumElements() {
			return nil, fmt.Errorf("onnx: tensor %q: %d values for %d elements", t.Name, len(t.FloatData), t.NumElements())
		}
		return t.FloatData, nil
	}
	if int64(len(t.RawData)) != 4*t.NumElements() {
		return nil, fmt.Errorf("onnx: tensor %q: %d raw bytes for %d elements", t.Name, len(t.RawData), t.NumElements())
	}
	out := make([]float32, len(t.RawData)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.RawData[4*i:]))
	}
	return out, nil
}

// Int64s returns the tensor data of an int64 tensor from either raw_data
// or int64_data.
func (t *TensorProto) Int64s() ([]int64, error) {
	if t.DataType != TensorProtoInt64 {
		return nil, fmt.Errorf("onnx: tensor %q: data type %d is not int64", t.Name, t.DataType)
	}
	if len(t.RawData) == 0 {
		if int64(len(t.Int64Data)) != t.NumElements() {
			return nil, fmt.Errorf("onnx: tensor %q: %d values for %d elements", t.Name, len(t.Int64Data), t.NumElements())
		}
		return t.Int64Data, nil
	}
	if int64(len(t.RawData)) != 8*t.NumElements() {
		return nil, fmt.Errorf("onnx: tensor %q: %d raw bytes for %d elements", t.Name, len(t.RawData), t.NumElements())
	}
	out := make([]int64, len(t.RawData)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(t.RawData[8*i:]))
	}
	return out, nil
}

// NewTensorValueInfo declares a tensor value with a fully static shape.
func NewTensorValueInfo(name string, elemType int32, dims []int64) ValueInfoProto {
	shape := &TensorShapeProto{Dims: make([]DimensionProto, len(dims))}
	for i, d := range dims {
		shape.Dims[i] = DimensionProto{DimValue: d}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// Dims returns the declared shape. Symbolic dimensions are reported as -1.
// ok is false when the value carries no tensor shape.
func (v *ValueInfoProto) Dims() (dims []int64, ok bool) {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil, false
	}
	for _, d := range v.Type.TensorType.Shape.Dims {
		if d.DimParam != "" {
			dims = append(dims, -1)
			continue
		}
		dims = append(dims, d.DimValue)
	}
	return dims, true
}

// Static reports whether every declared dimension is a fixed size.
func (v *ValueInfoProto) Static() bool {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return false
	}
	for _, d := range v.Type.TensorType.Shape.Dims {
		if d.DimParam != "" {
			return false
		}
	}
	return true
}
