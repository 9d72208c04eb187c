// Package safetensors reads and writes the SafeTensors checkpoint format.
//
// Layout:
//
//	[8 bytes: header size, uint64 little-endian]
//	[header: JSON object, name → {dtype, shape, data_offsets}, plus "__metadata__"]
//	[tensor data]
//
// Tensors are decoded to float32. F16, BF16 and F64 checkpoints are widened
// or narrowed on read; files are always written as F32.
package safetensors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DType is a SafeTensors element type tag.
type DType string

// Element types understood by the reader.
const (
	F16  DType = "F16"
	BF16 DType = "BF16"
	F32  DType = "F32"
	F64  DType = "F64"
)

// Size returns the element size in bytes, or 0 for unsupported types.
func (d DType) Size() int {
	switch d {
	case F16, BF16:
		return 2
	case F32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

// maxHeaderSize bounds the JSON header to reject garbage files early.
const maxHeaderSize = 100 << 20

const metadataKey = "__metadata__"

// Errors returned while decoding.
var (
	ErrInvalidHeader    = errors.New("safetensors: invalid header")
	ErrUnsupportedDType = errors.New("safetensors: unsupported dtype")
	ErrTensorNotFound   = errors.New("safetensors: tensor not found")
	ErrTruncated        = errors.New("safetensors: truncated data")
)

// TensorInfo describes one tensor in the header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) relative to the data section
}

// Header is the decoded JSON header.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON splits "__metadata__" from the tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	h.Tensors = make(map[string]TensorInfo, len(fields))
	for key, value := range fields {
		if key == metadataKey {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return fmt.Errorf("metadata: %w", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// MarshalJSON writes tensors and metadata as one flat object.
func (h Header) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(h.Tensors)+1)
	if len(h.Metadata) > 0 {
		fields[metadataKey] = h.Metadata
	}
	for name, info := range h.Tensors {
		fields[name] = info
	}
	return json.Marshal(fields)
}
