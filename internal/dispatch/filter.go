package dispatch

import (
	"github.com/dshills/cuecontrol/internal/dispatch/mask"
)

// Filter returns the values a handler receives after matching m.
//
// Positions pinned by concrete cells are dropped; wildcard positions and any
// values beyond the mask are kept in their original order. Fewer values than
// cells is a malformed message and yields an *ArityError with no values.
func Filter(m mask.Mask, values ...any) ([]any, error) {
	if len(values) < len(m) {
		return nil, &ArityError{Want: len(m), Got: len(values)}
	}

	residual := make([]any, 0, m.Wildcards()+len(values)-len(m))
	for i, c := range m {
		if c.IsWildcard() {
			residual = append(residual, values[i])
		}
	}
	residual = append(residual, values[len(m):]...)
	return residual, nil
}
