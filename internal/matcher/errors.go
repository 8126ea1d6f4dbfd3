package matcher

import "errors"

// ErrDimensionMismatch is returned when a query vector's length differs from
// the snapshot's. This is input corruption, not a recognition outcome.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
