package trace

import (
	"fmt"
	"sort"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// IO names the graph's single input and single output.
type IO struct {
	Input  string
	Output string
}

// Value is a named tensor slot with a fixed shape.
type Value struct {
	Name  string
	Shape tensor.Shape
}

// Constant is a named tensor baked into the graph.
type Constant struct {
	Name   string
	Tensor *tensor.RawTensor
}

// GraphNode is a frozen operation referring to values by name.
type GraphNode struct {
	Op     Op
	Inputs []string
	Output Value
	Attrs  Attrs
}

// Graph is a frozen computation with one input and one output.
// Every value not computed from the input is a Constant.
type Graph struct {
	Input     Value
	Output    Value
	Nodes     []GraphNode
	Constants []Constant

	consumed bool
}

// Consume marks the graph as handed off. A second call returns ErrConsumed.
func (g *Graph) Consume() error {
	if g.consumed {
		return ErrConsumed
	}
	g.consumed = true
	return nil
}

// Consumed reports whether Consume was called.
func (g *Graph) Consumed() bool {
	return g.consumed
}

// NumParams returns the total element count of all constants.
func (g *Graph) NumParams() int {
	n := 0
	for _, c := range g.Constants {
		n += c.Tensor.NumElements()
	}
	return n
}

// OpCounts returns how many nodes of each op the graph holds.
func (g *Graph) OpCounts() map[Op]int {
	counts := make(map[Op]int)
	for i := range g.Nodes {
		counts[g.Nodes[i].Op]++
	}
	return counts
}

// Freeze converts a recorded tape into a Graph.
//
// input is the tensor fed to the traced forward pass and output the tensor
// it returned. Nodes whose operands are all independent of input are folded:
// their recorded result becomes a constant. Nodes that do not contribute to
// output are dropped. Leaves registered with Tape.NameConstant keep their
// names; other constants are numbered in order of first use.
func Freeze(tape *Tape, input, output *tensor.RawTensor, io IO) (*Graph, error) {
	nodes := tape.Nodes()
	if len(nodes) == 0 {
		return nil, ErrEmptyTrace
	}
	if input == output {
		return nil, fmt.Errorf("%w: output is the input", ErrNoInput)
	}

	// Forward pass: mark values computed from the input.
	derived := map[*tensor.RawTensor]bool{input: true}
	live := make([]bool, len(nodes))
	for i := range nodes {
		for _, in := range nodes[i].Inputs {
			if derived[in] {
				live[i] = true
				break
			}
		}
		if live[i] {
			derived[nodes[i].Output] = true
		}
	}
	if !derived[output] {
		return nil, ErrNoInput
	}

	// Backward pass: keep live nodes that reach the output.
	needed := map[*tensor.RawTensor]bool{output: true}
	keep := make([]bool, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		if !live[i] || !needed[nodes[i].Output] {
			continue
		}
		keep[i] = true
		for _, in := range nodes[i].Inputs {
			needed[in] = true
		}
	}

	n := &namer{
		tape:  tape,
		names: map[*tensor.RawTensor]string{input: io.Input, output: io.Output},
		taken: map[string]bool{io.Input: true, io.Output: true},
		ops:   make(map[Op]int),
	}

	g := &Graph{
		Input:  Value{Name: io.Input, Shape: input.Shape().Clone()},
		Output: Value{Name: io.Output, Shape: output.Shape().Clone()},
	}
	for i := range nodes {
		if !keep[i] {
			continue
		}
		node := &nodes[i]
		gn := GraphNode{
			Op:     node.Op,
			Inputs: make([]string, len(node.Inputs)),
			Attrs:  node.Attrs,
		}
		for j, in := range node.Inputs {
			if derived[in] {
				gn.Inputs[j] = n.names[in]
				continue
			}
			name, fresh := n.constant(in)
			if fresh {
				g.Constants = append(g.Constants, Constant{Name: name, Tensor: in})
			}
			gn.Inputs[j] = name
		}
		gn.Output = Value{Name: n.value(node.Op, node.Output), Shape: node.Output.Shape().Clone()}
		g.Nodes = append(g.Nodes, gn)
	}
	return g, nil
}

// namer assigns deterministic, unique value names.
type namer struct {
	tape   *Tape
	names  map[*tensor.RawTensor]string
	taken  map[string]bool
	ops    map[Op]int
	consts int
}

func (n *namer) unique(base string) string {
	name := base
	for k := 1; n.taken[name]; k++ {
		name = fmt.Sprintf("%s_%d", base, k)
	}
	n.taken[name] = true
	return name
}

func (n *namer) constant(raw *tensor.RawTensor) (string, bool) {
	if name, ok := n.names[raw]; ok {
		return name, false
	}
	base, ok := n.tape.names[raw]
	if !ok {
		base = fmt.Sprintf("const_%d", n.consts)
		n.consts++
	}
	name := n.unique(base)
	n.names[raw] = name
	return name, true
}

func (n *namer) value(op Op, raw *tensor.RawTensor) string {
	if name, ok := n.names[raw]; ok {
		return name
	}
	name := n.unique(fmt.Sprintf("%s_%d", op, n.ops[op]))
	n.ops[op]++
	n.names[raw] = name
	return name
}

// ConstantNames returns the sorted constant names.
func (g *Graph) ConstantNames() []string {
	names := make([]string, len(g.Constants))
	for i, c := range g.Constants {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}
