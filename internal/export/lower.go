package export

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/config"
	"github.com/born-ml/spkrec-export/internal/onnx"
	"github.com/born-ml/spkrec-export/internal/tensor"
	"github.com/born-ml/spkrec-export/internal/trace"
)

// IRVersion is the ONNX IR version written for the supported opsets.
const IRVersion = 7

// lowering builds an ONNX graph from a frozen trace.
type lowering struct {
	opset  int
	nodes  []onnx.NodeProto
	inits  []onnx.TensorProto
	shapes map[string]tensor.Shape
}

// Lower converts a frozen graph to an ONNX graph for opset.
func Lower(g *trace.Graph, opset int) (*onnx.GraphProto, error) {
	if opset < config.MinOpset || opset > config.MaxOpset {
		return nil, fmt.Errorf("opset %d outside supported range %d..%d", opset, config.MinOpset, config.MaxOpset)
	}

	l := &lowering{
		opset:  opset,
		shapes: map[string]tensor.Shape{g.Input.Name: g.Input.Shape},
	}
	for _, c := range g.Constants {
		l.shapes[c.Name] = c.Tensor.Shape()
		l.inits = append(l.inits, onnx.NewFloatTensor(c.Name, c.Tensor.Shape().Int64s(), c.Tensor.Data()))
	}

	var valueInfo []onnx.ValueInfoProto
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := l.node(n); err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, n.Op, err)
		}
		l.shapes[n.Output.Name] = n.Output.Shape
		if n.Output.Name != g.Output.Name {
			valueInfo = append(valueInfo, onnx.NewTensorValueInfo(n.Output.Name, onnx.TensorProtoFloat, n.Output.Shape.Int64s()))
		}
	}

	return &onnx.GraphProto{
		Name:         "spkrec",
		Nodes:        l.nodes,
		Initializers: l.inits,
		Inputs:       []onnx.ValueInfoProto{onnx.NewTensorValueInfo(g.Input.Name, onnx.TensorProtoFloat, g.Input.Shape.Int64s())},
		Outputs:      []onnx.ValueInfoProto{onnx.NewTensorValueInfo(g.Output.Name, onnx.TensorProtoFloat, g.Output.Shape.Int64s())},
		ValueInfo:    valueInfo,
	}, nil
}

func (l *lowering) emit(opType string, inputs []string, output string, attrs ...onnx.AttributeProto) {
	l.nodes = append(l.nodes, onnx.NodeProto{
		Name:       output,
		OpType:     opType,
		Inputs:     inputs,
		Outputs:    []string{output},
		Attributes: attrs,
	})
}

// int64Const adds an int64 initializer named after the consuming value.
func (l *lowering) int64Const(owner, suffix string, dims []int64, data []int64) string {
	name := owner + "_" + suffix
	l.inits = append(l.inits, onnx.NewInt64Tensor(name, dims, data))
	return name
}

func (l *lowering) scalarConst(owner string, v float32) string {
	name := owner + "_scalar"
	l.inits = append(l.inits, onnx.NewFloatTensor(name, nil, []float32{v}))
	return name
}

var elementwise = map[trace.Op]string{
	trace.OpAdd:     "Add",
	trace.OpSub:     "Sub",
	trace.OpMul:     "Mul",
	trace.OpDiv:     "Div",
	trace.OpMatMul:  "MatMul",
	trace.OpExp:     "Exp",
	trace.OpLog:     "Log",
	trace.OpSqrt:    "Sqrt",
	trace.OpReLU:    "Relu",
	trace.OpSigmoid: "Sigmoid",
	trace.OpTanh:    "Tanh",
}

func (l *lowering) node(n *trace.GraphNode) error {
	out := n.Output.Name
	a := &n.Attrs

	if opType, ok := elementwise[n.Op]; ok {
		l.emit(opType, n.Inputs, out)
		return nil
	}

	switch n.Op {
	case trace.OpConv1D:
		kernel, ok := l.shapes[n.Inputs[1]]
		if !ok || len(kernel) != 3 {
			return fmt.Errorf("conv kernel %q has shape %v", n.Inputs[1], kernel)
		}
		l.emit("Conv", n.Inputs, out,
			onnx.AttrInts("kernel_shape", int64(kernel[2])),
			onnx.AttrInts("strides", int64(a.Stride)),
			onnx.AttrInts("pads", int64(a.Padding), int64(a.Padding)),
			onnx.AttrInts("dilations", int64(a.Dilation)),
			onnx.AttrInt("group", 1))

	case trace.OpReshape:
		shape := l.int64Const(out, "shape", []int64{int64(len(a.Shape))}, a.Shape.Int64s())
		l.emit("Reshape", []string{n.Inputs[0], shape}, out)

	case trace.OpTranspose:
		perm := make([]int64, len(a.Axes))
		for i, ax := range a.Axes {
			perm[i] = int64(ax)
		}
		if len(perm) == 0 {
			rank := len(l.shapes[n.Inputs[0]])
			for i := rank - 1; i >= 0; i-- {
				perm = append(perm, int64(i))
			}
		}
		l.emit("Transpose", n.Inputs, out, onnx.AttrInts("perm", perm...))

	case trace.OpSqueeze, trace.OpUnsqueeze:
		opType := "Squeeze"
		if n.Op == trace.OpUnsqueeze {
			opType = "Unsqueeze"
		}
		axes := l.int64Const(out, "axes", []int64{1}, []int64{int64(a.Dim)})
		l.emit(opType, []string{n.Inputs[0], axes}, out)

	case trace.OpCat:
		l.emit("Concat", n.Inputs, out, onnx.AttrInt("axis", int64(a.Dim)))

	case trace.OpNarrow:
		starts := l.int64Const(out, "starts", []int64{1}, []int64{int64(a.Start)})
		ends := l.int64Const(out, "ends", []int64{1}, []int64{int64(a.Start + a.Length)})
		axes := l.int64Const(out, "axes", []int64{1}, []int64{int64(a.Dim)})
		l.emit("Slice", []string{n.Inputs[0], starts, ends, axes}, out)

	case trace.OpAddScalar:
		l.emit("Add", []string{n.Inputs[0], l.scalarConst(out, a.Scalar)}, out)

	case trace.OpMulScalar:
		l.emit("Mul", []string{n.Inputs[0], l.scalarConst(out, a.Scalar)}, out)

	case trace.OpRsqrt:
		sqrt := out + "_sqrt"
		l.emit("Sqrt", n.Inputs, sqrt)
		l.emit("Reciprocal", []string{sqrt}, out)

	case trace.OpSoftmax:
		l.emit("Softmax", n.Inputs, out, onnx.AttrInt("axis", int64(a.Dim)))

	case trace.OpMeanDim:
		// ReduceMean takes axes as an attribute before opset 18.
		l.emit("ReduceMean", n.Inputs, out,
			onnx.AttrInts("axes", int64(a.Dim)),
			onnx.AttrInt("keepdims", boolInt(a.KeepDim)))

	case trace.OpSumDim:
		axes := l.int64Const(out, "axes", []int64{1}, []int64{int64(a.Dim)})
		l.emit("ReduceSum", []string{n.Inputs[0], axes}, out, onnx.AttrInt("keepdims", boolInt(a.KeepDim)))

	default:
		return fmt.Errorf("%w: %s", trace.ErrUnsupportedOp, n.Op)
	}
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
