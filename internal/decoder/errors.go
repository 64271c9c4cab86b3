package decoder

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch indicates inconsistent array dimensions between the
// transition model, likelihood, initial conditions, and state counts.
// It is always returned before any recursion begins.
var ErrShapeMismatch = errors.New("decoder: shape mismatch")

// ErrUnknownEnvironment indicates a regime references a spatial environment
// that is not part of the fitted environment set.
var ErrUnknownEnvironment = errors.New("decoder: unknown environment")

// shapeErrorf wraps ErrShapeMismatch with the offending dimensions.
func shapeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}
