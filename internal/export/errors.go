package export

import "errors"

var (
	// ErrExport wraps every tracing and serialization failure.
	ErrExport = errors.New("export: failed")

	// ErrTrace is returned when the example run cannot be recorded.
	ErrTrace = errors.New("export: trace failed")

	// ErrTraceCheck is returned when replaying the frozen graph does not
	// reproduce the eager output.
	ErrTraceCheck = errors.New("export: frozen graph diverges from eager output")

	// ErrTrainingMode is returned when the model still has dropout or
	// batch statistics active.
	ErrTrainingMode = errors.New("export: model is in training mode")

	// ErrUnexpectedRank is returned for native outputs the wrapper cannot
	// normalize to [batch, emb].
	ErrUnexpectedRank = errors.New("export: unexpected output rank")

	// ErrModeUnsupported is returned for any export mode other than trace.
	ErrModeUnsupported = errors.New("export: unsupported export mode")

	// ErrInterface is returned when a written artifact does not declare
	// the expected input and output.
	ErrInterface = errors.New("export: artifact interface mismatch")
)
