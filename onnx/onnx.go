// Package onnx reads the interface of ONNX model files.
//
// It is the inspection side of the exporter: consumers use it to confirm
// the input length and embedding size an artifact was exported with.
//
// # Example Usage
//
//	info, err := onnx.Inspect("models/spkrec-ecapa-voxceleb.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(info.OpsetVersion, info.Inputs[0].Dims, info.Metadata["sample_rate"])
package onnx

import (
	internalonnx "github.com/born-ml/spkrec-export/internal/onnx"
)

// ModelInfo summarizes a model's declared interface.
type ModelInfo = internalonnx.ModelInfo

// Tensor describes one declared graph input or output.
type Tensor = internalonnx.Tensor

// Model is a decoded ONNX model.
type Model = internalonnx.ModelProto

// ErrMalformed reports bytes that are not a valid ONNX model.
var ErrMalformed = internalonnx.ErrMalformed

// Inspect parses the model at path and summarizes it.
func Inspect(path string) (*ModelInfo, error) {
	return internalonnx.InspectFile(path)
}

// Parse decodes a model from bytes.
func Parse(data []byte) (*Model, error) {
	return internalonnx.Parse(data)
}

// ParseFile decodes the model at path.
func ParseFile(path string) (*Model, error) {
	return internalonnx.ParseFile(path)
}
