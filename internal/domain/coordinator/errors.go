package coordinator

import "errors"

// Sentinel errors for this package.
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrClosed            = errors.New("coordinator closed")
	ErrDispatchRefused   = errors.New("submission not accepted for dispatch")
)
