package model

import (
	"errors"

	"github.com/okian/eldlog/internal/domain/status"
)

// Error taxonomy shared by the engine. None of these is fatal; each is
// contained to the render pass or operation that produced it.
var (
	ErrUnknownStatusCode    = status.ErrUnknownStatusCode
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRemoteFetchFailure   = errors.New("remote fetch failed")
	ErrRemoteSubmitFailure  = errors.New("remote submit failed")
)
