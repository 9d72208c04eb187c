package onnx

// AttrInt builds an INT attribute.
func AttrInt(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// AttrInts builds an INTS attribute.
func AttrInts(name string, vs ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: vs}
}

// AttrFloat builds a FLOAT attribute.
func AttrFloat(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

// AttrString builds a STRING attribute.
func AttrString(name, v string) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoString, S: []byte(v)}
}

// AttrTensor builds a TENSOR attribute, as used by Constant nodes.
func AttrTensor(name string, t TensorProto) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoTensor, T: &t}
}

// Attr returns the attribute with the given name.
func (n *NodeProto) Attr(name string) (*AttributeProto, bool) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i], true
		}
	}
	return nil, false
}

// AttrInt returns an INT attribute or def when absent.
func (n *NodeProto) AttrInt(name string, def int64) int64 {
	if a, ok := n.Attr(name); ok && a.Type == AttributeProtoInt {
		return a.I
	}
	return def
}

// AttrInts returns an INTS attribute or nil when absent.
func (n *NodeProto) AttrInts(name string) []int64 {
	if a, ok := n.Attr(name); ok && a.Type == AttributeProtoInts {
		return a.Ints
	}
	return nil
}
