package report

import "errors"

// Sentinel kinds for report export errors.
var (
	ErrEncode = errors.New("report encode failed")
	ErrSink   = errors.New("report sink failed")
	ErrConfig = errors.New("invalid report configuration")
)
