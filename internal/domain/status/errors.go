package status

import "errors"

// ErrUnknownStatusCode is returned for a status that is not in the catalog.
var ErrUnknownStatusCode = errors.New("unknown status code")
