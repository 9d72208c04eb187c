package trace

import "errors"

// Sentinel errors for freezing and replaying graphs.
var (
	// ErrNoInput is returned when the traced input never reaches the output.
	ErrNoInput = errors.New("trace: output does not depend on the input")

	// ErrEmptyTrace is returned when no operations were recorded.
	ErrEmptyTrace = errors.New("trace: no operations recorded")

	// ErrShapeMismatch is returned when a frozen graph is run on an input
	// whose shape differs from the traced one.
	ErrShapeMismatch = errors.New("trace: input shape does not match traced shape")

	// ErrConsumed is returned when a graph is used after it was handed off.
	ErrConsumed = errors.New("trace: graph already consumed")

	// ErrUnsupportedOp is returned when replay meets an op it cannot run.
	ErrUnsupportedOp = errors.New("trace: unsupported op")
)
