package repository

import "errors"

// Sentinel kinds for snapshot store errors.
var (
	ErrNotFound = errors.New("snapshot not found")
	ErrConnect  = errors.New("snapshot store unreachable")
	ErrCorrupt  = errors.New("snapshot undecodable")
)
