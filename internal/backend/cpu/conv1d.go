package cpu

import (
	"fmt"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Conv1D convolves input [N, C, L] with kernel [O, C, K].
//
// The output is [N, O, Lout] with
//
//	Lout = (L + 2*padding - dilation*(K-1) - 1) / stride + 1
//
// Each batch item is lowered to im2col form [C*K, Lout] and multiplied by
// the kernel viewed as [O, C*K].
func (cpu *CPUBackend) Conv1D(input, kernel *tensor.RawTensor, stride, padding, dilation int) *tensor.RawTensor {
	inShape, kShape := input.Shape(), kernel.Shape()
	if len(inShape) != 3 || len(kShape) != 3 {
		panic(fmt.Sprintf("conv1d: expected input [N, C, L] and kernel [O, C, K], got %v and %v", inShape, kShape))
	}
	if stride < 1 || dilation < 1 || padding < 0 {
		panic(fmt.Sprintf("conv1d: invalid stride=%d padding=%d dilation=%d", stride, padding, dilation))
	}

	batch, channels, length := inShape[0], inShape[1], inShape[2]
	outChannels, kc, kSize := kShape[0], kShape[1], kShape[2]
	if kc != channels {
		panic(fmt.Sprintf("conv1d: input has %d channels, kernel expects %d", channels, kc))
	}

	span := dilation*(kSize-1) + 1
	outLen := (length+2*padding-span)/stride + 1
	if outLen <= 0 {
		panic(fmt.Sprintf("conv1d: input length %d too short for kernel span %d", length, span))
	}

	result := tensor.MustRaw(tensor.Shape{batch, outChannels, outLen}, cpu.device)
	in, w, out := input.Data(), kernel.Data(), result.Data()

	rows := channels * kSize
	cols := make([]float32, rows*outLen)
	for n := 0; n < batch; n++ {
		x := in[n*channels*length : (n+1)*channels*length]
		im2col(cols, x, channels, length, kSize, outLen, stride, padding, dilation)
		gemm(out[n*outChannels*outLen:(n+1)*outChannels*outLen], w, cols, outChannels, rows, outLen)
	}

	return result
}

// im2col unfolds x [C, L] into cols [C*K, Lout]; taps outside x read as zero.
func im2col(cols, x []float32, channels, length, kSize, outLen, stride, padding, dilation int) {
	for c := 0; c < channels; c++ {
		for k := 0; k < kSize; k++ {
			row := cols[(c*kSize+k)*outLen : (c*kSize+k+1)*outLen]
			for t := range row {
				pos := t*stride + k*dilation - padding
				if pos < 0 || pos >= length {
					row[t] = 0
					continue
				}
				row[t] = x[c*length+pos]
			}
		}
	}
}
