package trace

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// kernel executes a frozen node on a backend.
type kernel func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor

var kernels = map[Op]kernel{
	OpAdd:    func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Add(in[0], in[1]) },
	OpSub:    func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Sub(in[0], in[1]) },
	OpMul:    func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Mul(in[0], in[1]) },
	OpDiv:    func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Div(in[0], in[1]) },
	OpMatMul: func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.MatMul(in[0], in[1]) },
	OpConv1D: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor {
		return b.Conv1D(in[0], in[1], a.Stride, a.Padding, a.Dilation)
	},
	OpReshape:   func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.Reshape(in[0], a.Shape) },
	OpTranspose: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.Transpose(in[0], a.Axes...) },
	OpSqueeze:   func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.Squeeze(in[0], a.Dim) },
	OpUnsqueeze: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.Unsqueeze(in[0], a.Dim) },
	OpCat:       func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.Cat(in, a.Dim) },
	OpNarrow: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor {
		return b.Narrow(in[0], a.Dim, a.Start, a.Length)
	},
	OpAddScalar: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.AddScalar(in[0], a.Scalar) },
	OpMulScalar: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.MulScalar(in[0], a.Scalar) },
	OpExp:       func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Exp(in[0]) },
	OpLog:       func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Log(in[0]) },
	OpSqrt:      func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Sqrt(in[0]) },
	OpRsqrt:     func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Rsqrt(in[0]) },
	OpReLU:      func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.ReLU(in[0]) },
	OpSigmoid:   func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Sigmoid(in[0]) },
	OpTanh:      func(b tensor.Backend, in []*tensor.RawTensor, _ *Attrs) *tensor.RawTensor { return b.Tanh(in[0]) },
	OpSoftmax:   func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor { return b.Softmax(in[0], a.Dim) },
	OpSumDim: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor {
		return b.SumDim(in[0], a.Dim, a.KeepDim)
	},
	OpMeanDim: func(b tensor.Backend, in []*tensor.RawTensor, a *Attrs) *tensor.RawTensor {
		return b.MeanDim(in[0], a.Dim, a.KeepDim)
	},
}

// Run executes the graph on backend with the given input.
//
// The input must have exactly the traced shape. Backend panics surface as
// errors naming the failing node.
func (g *Graph) Run(backend tensor.Backend, input *tensor.RawTensor) (out *tensor.RawTensor, err error) {
	if !input.Shape().Equal(g.Input.Shape) {
		return nil, fmt.Errorf("%w: got %v, traced %v", ErrShapeMismatch, input.Shape(), g.Input.Shape)
	}

	env := make(map[string]*tensor.RawTensor, len(g.Nodes)+len(g.Constants)+1)
	env[g.Input.Name] = input
	for _, c := range g.Constants {
		env[c.Name] = c.Tensor
	}

	current := -1
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("trace: node %d (%s): %v", current, g.Nodes[current].Op, r)
		}
	}()

	for i := range g.Nodes {
		current = i
		node := &g.Nodes[i]
		k, ok := kernels[node.Op]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, node.Op)
		}
		args := make([]*tensor.RawTensor, len(node.Inputs))
		for j, name := range node.Inputs {
			v, ok := env[name]
			if !ok {
				return nil, fmt.Errorf("trace: node %d (%s): undefined value %q", i, node.Op, name)
			}
			args[j] = v
		}
		env[node.Output.Name] = k(backend, args, &node.Attrs)
	}

	result, ok := env[g.Output.Name]
	if !ok {
		return nil, fmt.Errorf("trace: output %q was never computed", g.Output.Name)
	}
	return result, nil
}
