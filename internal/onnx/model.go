package onnx

import "sort"

// Opset returns the default-domain operator set version, or 0 when absent.
func (m *ModelProto) Opset() int64 {
	for _, o := range m.OpsetImport {
		if o.Domain == "" || o.Domain == "ai.onnx" {
			return o.Version
		}
	}
	return 0
}

// Metadata returns metadata_props as a map.
func (m *ModelProto) Metadata() map[string]string {
	out := make(map[string]string, len(m.MetadataProps))
	for _, e := range m.MetadataProps {
		out[e.Key] = e.Value
	}
	return out
}

// SetMetadata replaces metadata_props with kv, sorted by key.
func (m *ModelProto) SetMetadata(kv map[string]string) {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m.MetadataProps = m.MetadataProps[:0]
	for _, k := range keys {
		m.MetadataProps = append(m.MetadataProps, StringStringEntry{Key: k, Value: kv[k]})
	}
}

// Tensor describes one declared graph input or output.
type Tensor struct {
	Name     string
	ElemType int32
	Dims     []int64
	Static   bool
}

// ModelInfo summarizes a model's declared interface.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	Inputs          []Tensor
	Outputs         []Tensor
	NodeCount       int
	WeightCount     int
	OpCounts        map[string]int
	Metadata        map[string]string
	DocString       string
}

// Inspect summarizes m. Graph inputs that are also initializers are not
// reported as inputs.
func Inspect(m *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       m.IRVersion,
		OpsetVersion:    m.Opset(),
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		OpCounts:        make(map[string]int),
		Metadata:        m.Metadata(),
	}
	g := m.Graph
	if g == nil {
		return info
	}
	info.DocString = g.DocString

	initNames := make(map[string]bool, len(g.Initializers))
	for i := range g.Initializers {
		initNames[g.Initializers[i].Name] = true
	}
	for i := range g.Inputs {
		if !initNames[g.Inputs[i].Name] {
			info.Inputs = append(info.Inputs, describe(&g.Inputs[i]))
		}
	}
	for i := range g.Outputs {
		info.Outputs = append(info.Outputs, describe(&g.Outputs[i]))
	}
	for i := range g.Nodes {
		info.OpCounts[g.Nodes[i].OpType]++
	}
	info.NodeCount = len(g.Nodes)
	info.WeightCount = len(g.Initializers)
	return info
}

// InspectFile parses the model at path and summarizes it.
func InspectFile(path string) (*ModelInfo, error) {
	m, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Inspect(m), nil
}

func describe(v *ValueInfoProto) Tensor {
	t := Tensor{Name: v.Name, Static: v.Static()}
	t.Dims, _ = v.Dims()
	if v.Type != nil && v.Type.TensorType != nil {
		t.ElemType = v.Type.TensorType.ElemType
	}
	return t
}
