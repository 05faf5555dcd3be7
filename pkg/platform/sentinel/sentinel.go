package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Audit packages wrap these so callers
// can classify failures with errors.Is without depending on package-specific errors:
// - ErrNotFound: handler, record or filter entry does not exist
// - ErrConflict: a unique registration was attempted twice
// - ErrInvalidState: object is in the wrong lifecycle state for the operation
// - ErrUnavailable: configuration or backing service not ready
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
