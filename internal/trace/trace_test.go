package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spkrec-export/internal/backend/cpu"
	"github.com/born-ml/spkrec-export/internal/tensor"
)

type traced struct {
	backend *Backend[*cpu.CPUBackend]
	input   *tensor.Tensor[*Backend[*cpu.CPUBackend]]
	output  *tensor.Tensor[*Backend[*cpu.CPUBackend]]
}

// buildAndTrace runs relu(x @ (2w)^T + bias) with an unused exp(x) branch.
func buildAndTrace(t *testing.T) traced {
	t.Helper()
	b := New(cpu.New())

	w, err := tensor.FromSlice([]float32{1, 0, -1, 0.5, 0.5, 0.5}, tensor.Shape{2, 3}, b)
	require.NoError(t, err)
	bias, err := tensor.FromSlice([]float32{0.1, -10}, tensor.Shape{2}, b)
	require.NoError(t, err)
	x, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3}, b)
	require.NoError(t, err)

	b.Tape().NameConstant(w.Raw(), "w")
	b.Tape().NameConstant(bias.Raw(), "bias")

	b.Tape().StartRecording()
	scaled := w.MulScalar(2).Transpose()
	_ = x.Exp()
	out := x.MatMul(scaled).Add(bias).ReLU()
	b.Tape().StopRecording()

	return traced{backend: b, input: x, output: out}
}

var names = IO{Input: "waveform", Output: "embedding"}

func TestBackendRecords(t *testing.T) {
	tr := buildAndTrace(t)
	tape := tr.backend.Tape()

	assert.False(t, tape.IsRecording())
	assert.Equal(t, 6, tape.NumOps())
	assert.Equal(t, "Trace(CPU)", tr.backend.Name())
	assert.Equal(t, tensor.CPU, tr.backend.Device())

	ops := make([]Op, 0, tape.NumOps())
	for _, n := range tape.Nodes() {
		ops = append(ops, n.Op)
	}
	assert.Equal(t, []Op{OpMulScalar, OpTranspose, OpExp, OpMatMul, OpAdd, OpReLU}, ops)
	assert.Equal(t, float32(2), tape.Nodes()[0].Attrs.Scalar)

	// Eager results are unaffected by recording.
	assert.InDeltaSlice(t, []float32{0, 0}, tr.output.Data(), 1e-6)

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
}

func TestRecordingOff(t *testing.T) {
	b := New(cpu.New())
	x := tensor.Full(tensor.Shape{2}, 1, b)
	_ = x.AddScalar(1)
	assert.Equal(t, 0, b.Tape().NumOps())
}

func TestReshapeRecordsResolvedShape(t *testing.T) {
	b := New(cpu.New())
	x := tensor.Zeros(tensor.Shape{2, 6}, b)

	b.Tape().StartRecording()
	_ = x.Reshape(3, -1)
	b.Tape().StopRecording()

	require.Equal(t, 1, b.Tape().NumOps())
	assert.Equal(t, tensor.Shape{3, 4}, b.Tape().Nodes()[0].Attrs.Shape)
}

func TestNarrowReplays(t *testing.T) {
	b := New(cpu.New())
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 4}, b)
	require.NoError(t, err)

	b.Tape().StartRecording()
	parts := x.Chunk(2, 1)
	out := tensor.Cat([]*tensor.Tensor[*Backend[*cpu.CPUBackend]]{parts[1], parts[0]}, 1)
	b.Tape().StopRecording()

	require.Equal(t, []float32{3, 4, 1, 2}, out.Data())
	narrow := b.Tape().Nodes()[1]
	assert.Equal(t, OpNarrow, narrow.Op)
	assert.Equal(t, Attrs{Dim: 1, Start: 2, Length: 2}, narrow.Attrs)

	g, err := Freeze(b.Tape(), x.Raw(), out.Raw(), names)
	require.NoError(t, err)
	assert.Equal(t, 2, g.OpCounts()[OpNarrow])

	other, err := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{1, 4}, b.Inner())
	require.NoError(t, err)
	got, err := g.Run(b.Inner(), other.Raw())
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8, 5, 6}, got.Data())
}

func TestFreezeFoldsConstants(t *testing.T) {
	tr := buildAndTrace(t)

	g, err := Freeze(tr.backend.Tape(), tr.input.Raw(), tr.output.Raw(), names)
	require.NoError(t, err)

	assert.Equal(t, Value{Name: "waveform", Shape: tensor.Shape{1, 3}}, g.Input)
	assert.Equal(t, Value{Name: "embedding", Shape: tensor.Shape{1, 2}}, g.Output)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, OpMatMul, g.Nodes[0].Op)
	assert.Equal(t, []string{"waveform", "const_0"}, g.Nodes[0].Inputs)
	assert.Equal(t, "matmul_0", g.Nodes[0].Output.Name)
	assert.Equal(t, OpAdd, g.Nodes[1].Op)
	assert.Equal(t, []string{"matmul_0", "bias"}, g.Nodes[1].Inputs)
	assert.Equal(t, OpReLU, g.Nodes[2].Op)
	assert.Equal(t, "embedding", g.Nodes[2].Output.Name)

	// The folded (2w)^T is baked in; the raw w is no longer referenced.
	assert.Equal(t, []string{"bias", "const_0"}, g.ConstantNames())
	assert.Equal(t, tensor.Shape{3, 2}, g.Constants[0].Tensor.Shape())
	assert.Equal(t, []float32{2, 1, 0, 1, -2, 1}, g.Constants[0].Tensor.Data())
	assert.Equal(t, 8, g.NumParams())
	assert.Equal(t, 0, g.OpCounts()[OpExp])
}

func TestFreezeDeterministic(t *testing.T) {
	a := buildAndTrace(t)
	b := buildAndTrace(t)
	ga, err := Freeze(a.backend.Tape(), a.input.Raw(), a.output.Raw(), names)
	require.NoError(t, err)
	gb, err := Freeze(b.backend.Tape(), b.input.Raw(), b.output.Raw(), names)
	require.NoError(t, err)

	assert.Equal(t, ga.ConstantNames(), gb.ConstantNames())
	require.Equal(t, len(ga.Nodes), len(gb.Nodes))
	for i := range ga.Nodes {
		assert.Equal(t, ga.Nodes[i].Inputs, gb.Nodes[i].Inputs)
		assert.Equal(t, ga.Nodes[i].Output, gb.Nodes[i].Output)
	}
}

func TestFreezeErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		b := New(cpu.New())
		x := tensor.Zeros(tensor.Shape{1}, b)
		_, err := Freeze(b.Tape(), x.Raw(), x.Raw(), names)
		assert.ErrorIs(t, err, ErrEmptyTrace)
	})

	t.Run("identity", func(t *testing.T) {
		tr := buildAndTrace(t)
		_, err := Freeze(tr.backend.Tape(), tr.input.Raw(), tr.input.Raw(), names)
		assert.ErrorIs(t, err, ErrNoInput)
	})

	t.Run("constant output", func(t *testing.T) {
		b := New(cpu.New())
		x := tensor.Zeros(tensor.Shape{2}, b)
		c := tensor.Full(tensor.Shape{2}, 3, b)
		b.Tape().StartRecording()
		_ = x.AddScalar(1)
		out := c.Exp()
		b.Tape().StopRecording()

		_, err := Freeze(b.Tape(), x.Raw(), out.Raw(), names)
		assert.ErrorIs(t, err, ErrNoInput)
	})
}

func TestGraphRun(t *testing.T) {
	tr := buildAndTrace(t)
	g, err := Freeze(tr.backend.Tape(), tr.input.Raw(), tr.output.Raw(), names)
	require.NoError(t, err)

	backend := cpu.New()
	out, err := g.Run(backend, tr.input.Raw())
	require.NoError(t, err)
	assert.InDeltaSlice(t, tr.output.Data(), out.Data(), 1e-6)

	x, err := tensor.FromFloat32([]float32{1, 1, 1}, tensor.Shape{1, 3}, tensor.CPU)
	require.NoError(t, err)
	out, err = g.Run(backend, x)
	require.NoError(t, err)
	// relu([1,1,1] @ [[2,1],[0,1],[-2,1]] + [0.1,-10]) = relu([0.1, -7])
	assert.InDeltaSlice(t, []float32{0.1, 0}, out.Data(), 1e-6)

	wrong := tensor.MustRaw(tensor.Shape{2, 3}, tensor.CPU)
	_, err = g.Run(backend, wrong)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestGraphRunRecoversPanics(t *testing.T) {
	c := tensor.MustRaw(tensor.Shape{2, 2}, tensor.CPU)
	g := &Graph{
		Input:     Value{Name: "x", Shape: tensor.Shape{1, 3}},
		Output:    Value{Name: "y", Shape: tensor.Shape{1, 3}},
		Nodes:     []GraphNode{{Op: OpAdd, Inputs: []string{"x", "c"}, Output: Value{Name: "y"}}},
		Constants: []Constant{{Name: "c", Tensor: c}},
	}

	_, err := g.Run(cpu.New(), tensor.MustRaw(tensor.Shape{1, 3}, tensor.CPU))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 0 (add)")
}

func TestGraphConsume(t *testing.T) {
	g := &Graph{}
	assert.False(t, g.Consumed())
	require.NoError(t, g.Consume())
	assert.True(t, g.Consumed())
	assert.ErrorIs(t, g.Consume(), ErrConsumed)
}
