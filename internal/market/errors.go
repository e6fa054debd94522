package market

import "errors"

// Error taxonomy for the negotiation engine. Callers branch on these with
// errors.Is; everything else wraps one of them with context.
var (
	// ErrNotFound is returned for unknown RFP, bid, assignment, or provider ids
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation hits an RFP or assignment
	// outside the lifecycle state it requires
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned for malformed inputs, e.g. a rating outside [1,5]
	ErrValidation = errors.New("validation failed")
)
