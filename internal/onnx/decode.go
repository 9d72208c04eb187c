package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports bytes that are not a valid ONNX model.
var ErrMalformed = errors.New("onnx: malformed model")

// Parse decodes a model from protobuf wire format.
func Parse(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	if err := m.unmarshal(data); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseFile reads and decodes the model at path.
func ParseFile(path string) (*ModelProto, error) {
	//nolint:gosec // G304: caller-chosen model path.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data)
}

// field is one decoded tag plus its raw value.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64 // varint or fixed payload
	bytes []byte // length-delimited payload
}

// walk calls fn for every field in b.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.value = uint64(v)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) str() (string, error) {
	if f.typ != protowire.BytesType {
		return "", fmt.Errorf("%w: field %d: want bytes, got wire type %d", ErrMalformed, f.num, f.typ)
	}
	return string(f.bytes), nil
}

func (f field) varint() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d: want varint, got wire type %d", ErrMalformed, f.num, f.typ)
	}
	return int64(f.value), nil
}

// int64s accepts both packed and unpacked repeated varints.
func (f field) int64s(dst []int64) ([]int64, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, int64(f.value)), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %w", ErrMalformed, f.num, protowire.ParseError(n))
			}
			dst = append(dst, int64(v))
			b = b[n:]
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: field %d: unexpected wire type %d", ErrMalformed, f.num, f.typ)
}

// floats accepts both packed and unpacked repeated fixed32 values.
func (f field) floats(dst []float32) ([]float32, error) {
	switch f.typ {
	case protowire.Fixed32Type:
		return append(dst, math.Float32frombits(uint32(f.value))), nil
	case protowire.BytesType:
		if len(f.bytes)%4 != 0 {
			return nil, fmt.Errorf("%w: field %d: packed floats length %d", ErrMalformed, f.num, len(f.bytes))
		}
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed32(b)
			dst = append(dst, math.Float32frombits(v))
			b = b[n:]
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: field %d: unexpected wire type %d", ErrMalformed, f.num, f.typ)
}

func (f field) message(fn func([]byte) error) error {
	if f.typ != protowire.BytesType {
		return fmt.Errorf("%w: field %d: want message, got wire type %d", ErrMalformed, f.num, f.typ)
	}
	return fn(f.bytes)
}

func (m *ModelProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.IRVersion, err = f.varint()
		case 2:
			m.ProducerName, err = f.str()
		case 3:
			m.ProducerVersion, err = f.str()
		case 4:
			m.Domain, err = f.str()
		case 5:
			m.ModelVersion, err = f.varint()
		case 6:
			m.DocString, err = f.str()
		case 7:
			m.Graph = &GraphProto{}
			err = f.message(m.Graph.unmarshal)
		case 8:
			var o OperatorSetID
			if err = f.message(o.unmarshal); err == nil {
				m.OpsetImport = append(m.OpsetImport, o)
			}
		case 14:
			var e StringStringEntry
			if err = f.message(e.unmarshal); err == nil {
				m.MetadataProps = append(m.MetadataProps, e)
			}
		}
		return err
	})
}

func (g *GraphProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var n NodeProto
			if err = f.message(n.unmarshal); err == nil {
				g.Nodes = append(g.Nodes, n)
			}
		case 2:
			g.Name, err = f.str()
		case 5:
			var t TensorProto
			if err = f.message(t.unmarshal); err == nil {
				g.Initializers = append(g.Initializers, t)
			}
		case 10:
			g.DocString, err = f.str()
		case 11, 12, 13:
			var v ValueInfoProto
			if err = f.message(v.unmarshal); err != nil {
				return err
			}
			switch f.num {
			case 11:
				g.Inputs = append(g.Inputs, v)
			case 12:
				g.Outputs = append(g.Outputs, v)
			default:
				g.ValueInfo = append(g.ValueInfo, v)
			}
		}
		return err
	})
}

func (n *NodeProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var (
			s   string
			err error
		)
		switch f.num {
		case 1:
			if s, err = f.str(); err == nil {
				n.Inputs = append(n.Inputs, s)
			}
		case 2:
			if s, err = f.str(); err == nil {
				n.Outputs = append(n.Outputs, s)
			}
		case 3:
			n.Name, err = f.str()
		case 4:
			n.OpType, err = f.str()
		case 5:
			var a AttributeProto
			if err = f.message(a.unmarshal); err == nil {
				n.Attributes = append(n.Attributes, a)
			}
		case 6:
			n.DocString, err = f.str()
		case 7:
			n.Domain, err = f.str()
		}
		return err
	})
}

func (a *AttributeProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			a.Name, err = f.str()
		case 2:
			if f.typ != protowire.Fixed32Type {
				return fmt.Errorf("%w: attribute %q: float is not fixed32", ErrMalformed, a.Name)
			}
			a.F = math.Float32frombits(uint32(f.value))
		case 3:
			a.I, err = f.varint()
		case 4:
			var s string
			if s, err = f.str(); err == nil {
				a.S = []byte(s)
			}
		case 5:
			a.T = &TensorProto{}
			err = f.message(a.T.unmarshal)
		case 7:
			a.Floats, err = f.floats(a.Floats)
		case 8:
			a.Ints, err = f.int64s(a.Ints)
		case 9:
			var s string
			if s, err = f.str(); err == nil {
				a.Strings = append(a.Strings, []byte(s))
			}
		case 13:
			a.DocString, err = f.str()
		case 20:
			var v int64
			v, err = f.varint()
			a.Type = int32(v)
		}
		return err
	})
}

func (t *TensorProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.Dims, err = f.int64s(t.Dims)
		case 2:
			var v int64
			v, err = f.varint()
			t.DataType = int32(v)
		case 4:
			t.FloatData, err = f.floats(t.FloatData)
		case 5:
			var vs []int64
			if vs, err = f.int64s(nil); err == nil {
				for _, v := range vs {
					t.Int32Data = append(t.Int32Data, int32(v))
				}
			}
		case 7:
			t.Int64Data, err = f.int64s(t.Int64Data)
		case 8:
			t.Name, err = f.str()
		case 9:
			if f.typ != protowire.BytesType {
				return fmt.Errorf("%w: tensor %q: raw_data is not bytes", ErrMalformed, t.Name)
			}
			t.RawData = append([]byte(nil), f.bytes...)
		case 12:
			t.DocString, err = f.str()
		}
		return err
	})
}

func (v *ValueInfoProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			v.Name, err = f.str()
		case 2:
			v.Type = &TypeProto{}
			err = f.message(v.Type.unmarshal)
		case 3:
			v.DocString, err = f.str()
		}
		return err
	})
}

func (t *TypeProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		t.TensorType = &TensorTypeProto{}
		return f.message(t.TensorType.unmarshal)
	})
}

func (t *TensorTypeProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var v int64
			v, err = f.varint()
			t.ElemType = int32(v)
		case 2:
			t.Shape = &TensorShapeProto{}
			err = f.message(t.Shape.unmarshal)
		}
		return err
	})
}

func (s *TensorShapeProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var d DimensionProto
		if err := f.message(d.unmarshal); err != nil {
			return err
		}
		s.Dims = append(s.Dims, d)
		return nil
	})
}

func (d *DimensionProto) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			d.DimValue, err = f.varint()
		case 2:
			d.DimParam, err = f.str()
		}
		return err
	})
}

func (o *OperatorSetID) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			o.Domain, err = f.str()
		case 2:
			o.Version, err = f.varint()
		}
		return err
	})
}

func (e *StringStringEntry) unmarshal(b []byte) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			e.Key, err = f.str()
		case 2:
			e.Value, err = f.str()
		}
		return err
	})
}
