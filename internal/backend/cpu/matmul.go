package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// MatMul performs matrix multiplication over the last two dimensions and
// broadcasts the leading batch dimensions.
//
//	[M, K] @ [K, N]       → [M, N]
//	[M, K] @ [B, K, N]    → [B, M, N]
//	[B, M, K] @ [B, K, N] → [B, M, N]
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) < 2 || len(bShape) < 2 {
		panic(fmt.Sprintf("matmul: need at least 2D operands, got %v @ %v", aShape, bShape))
	}

	m, k := aShape[len(aShape)-2], aShape[len(aShape)-1]
	kb, n := bShape[len(bShape)-2], bShape[len(bShape)-1]
	if k != kb {
		panic(fmt.Sprintf("matmul: shape mismatch %v @ %v", aShape, bShape))
	}

	aBatch, bBatch := aShape[:len(aShape)-2], bShape[:len(bShape)-2]
	batch, err := tensor.BroadcastShapes(aBatch, bBatch)
	if err != nil {
		panic(fmt.Sprintf("matmul: batch %v", err))
	}

	outShape := append(batch.Clone(), m, n)
	result := tensor.MustRaw(outShape, cpu.device)
	ad, bd, out := a.Data(), b.Data(), result.Data()

	// Strides below count whole matrices, not elements.
	aStrides := broadcastStrides(aBatch, batch)
	bStrides := broadcastStrides(bBatch, batch)
	outStrides := batch.ComputeStrides()

	for i := 0; i < batch.NumElements(); i++ {
		ai, bi := broadcastIndex(i, outStrides, aStrides, bStrides)
		gemm(
			out[i*m*n:(i+1)*m*n],
			ad[ai*m*k:(ai+1)*m*k],
			bd[bi*k*n:(bi+1)*k*n],
			m, k, n,
		)
	}

	return result
}

// gemm computes C = A @ B for row-major A [m, k], B [k, n], C [m, n].
func gemm(c, a, b []float32, m, k, n int) {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
