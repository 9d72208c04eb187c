package trace

import (
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Op identifies a recorded backend operation.
type Op int

// Recorded operations, one per tensor.Backend method.
const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMatMul
	OpConv1D
	OpReshape
	OpTranspose
	OpSqueeze
	OpUnsqueeze
	OpCat
	OpNarrow
	OpAddScalar
	OpMulScalar
	OpExp
	OpLog
	OpSqrt
	OpRsqrt
	OpReLU
	OpSigmoid
	OpTanh
	OpSoftmax
	OpSumDim
	OpMeanDim
)

var opNames = [...]string{
	OpAdd:       "add",
	OpSub:       "sub",
	OpMul:       "mul",
	OpDiv:       "div",
	OpMatMul:    "matmul",
	OpConv1D:    "conv1d",
	OpReshape:   "reshape",
	OpTranspose: "transpose",
	OpSqueeze:   "squeeze",
	OpUnsqueeze: "unsqueeze",
	OpCat:       "cat",
	OpNarrow:    "narrow",
	OpAddScalar: "add_scalar",
	OpMulScalar: "mul_scalar",
	OpExp:       "exp",
	OpLog:       "log",
	OpSqrt:      "sqrt",
	OpRsqrt:     "rsqrt",
	OpReLU:      "relu",
	OpSigmoid:   "sigmoid",
	OpTanh:      "tanh",
	OpSoftmax:   "softmax",
	OpSumDim:    "sum_dim",
	OpMeanDim:   "mean_dim",
}

// String returns the lower-case op name used in value names.
func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "unknown"
	}
	return opNames[o]
}

// Attrs holds the non-tensor arguments of a recorded call.
// Only the fields relevant to the op are set.
type Attrs struct {
	Stride   int          // conv1d
	Padding  int          // conv1d
	Dilation int          // conv1d
	Dim      int          // squeeze, unsqueeze, cat, narrow, softmax, sum_dim, mean_dim
	Start    int          // narrow
	Length   int          // narrow
	KeepDim  bool         // sum_dim, mean_dim
	Scalar   float32      // add_scalar, mul_scalar
	Axes     []int        // transpose
	Shape    tensor.Shape // reshape (resolved target shape)
}

// Node is one recorded call: the op, its tensor operands and its result.
type Node struct {
	Op     Op
	Inputs []*tensor.RawTensor
	Output *tensor.RawTensor
	Attrs  Attrs
}
