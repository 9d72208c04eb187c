package nn

import (
	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Kind classifies a parameter.
type Kind int

// Parameter kinds.
const (
	KindWeight Kind = iota
	KindBias
	KindBuffer // running statistics and norm scales, never randomized
)

// Parameter is a named tensor owned by a module.
//
// Names are fully qualified at construction ("blocks.0.conv.weight"), so a
// model's parameters map one-to-one onto checkpoint keys.
type Parameter[B tensor.Backend] struct {
	name   string
	kind   Kind
	tensor *tensor.Tensor[B]
}

// NewParameter creates a parameter.
func NewParameter[B tensor.Backend](name string, kind Kind, t *tensor.Tensor[B]) *Parameter[B] {
	return &Parameter[B]{name: name, kind: kind, tensor: t}
}

// Name returns the fully qualified parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Kind returns the parameter kind.
func (p *Parameter[B]) Kind() Kind {
	return p.kind
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[B] {
	return p.tensor
}

// Shape returns the parameter shape.
func (p *Parameter[B]) Shape() tensor.Shape {
	return p.tensor.Shape()
}
