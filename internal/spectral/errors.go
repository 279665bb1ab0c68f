package spectral

import "errors"

var (
	// ErrInvalidConfig is returned when a component is constructed with a
	// missing or out-of-range parameter. The component refuses to start.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDegenerateInput marks input that cannot produce a valid record,
	// such as a regression over points that all share one time value.
	// Stages surface it as a cut record rather than returning it.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvariant reports a broken internal invariant (a cluster finalized
	// twice, for instance). It indicates a programming error.
	ErrInvariant = errors.New("internal invariant violated")
)
