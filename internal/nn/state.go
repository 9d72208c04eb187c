package nn

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/spkrec-export/internal/tensor"
)

// Errors returned by LoadStateDict.
var (
	ErrMissingParameter = errors.New("nn: missing parameter")
	ErrShapeMismatch    = errors.New("nn: parameter shape mismatch")
	ErrDuplicateName    = errors.New("nn: duplicate parameter name")
)

// StateDict returns a map of parameter names to raw tensors.
func StateDict[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies tensors from state into params.
//
// Every parameter must be present with its exact shape. Keys in state that
// match no parameter are returned sorted, so callers can decide whether
// they matter.
func LoadStateDict[B tensor.Backend](params []*Parameter[B], state map[string]*tensor.RawTensor) ([]string, error) {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, p.Name())
		}
		seen[p.Name()] = true

		raw, ok := state[p.Name()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, p.Name())
		}
		if !raw.Shape().Equal(p.Shape()) {
			return nil, fmt.Errorf("%w: %s: expected %v, got %v", ErrShapeMismatch, p.Name(), p.Shape(), raw.Shape())
		}
		copy(p.Tensor().Data(), raw.Data())
	}

	var unexpected []string
	for name := range state {
		if !seen[name] {
			unexpected = append(unexpected, name)
		}
	}
	sort.Strings(unexpected)
	return unexpected, nil
}

// NumParams returns the total element count of params.
func NumParams[B tensor.Backend](params []*Parameter[B]) int {
	n := 0
	for _, p := range params {
		n += p.Shape().NumElements()
	}
	return n
}
