package collaborator

import "errors"

// Sentinel errors for this package. Failures are additionally wrapped in
// model.ErrRemoteFetchFailure or model.ErrRemoteSubmitFailure.
var (
	ErrInvalidBaseURL   = errors.New("invalid collaborator base url")
	ErrRejected         = errors.New("rejected by collaborator")
	ErrUnexpectedStatus = errors.New("unexpected collaborator response status")
	ErrDecode           = errors.New("undecodable collaborator response")
)
