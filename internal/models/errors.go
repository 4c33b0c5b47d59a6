package models

import "errors"

// Control-plane error taxonomy. The registry returns these unchanged and the
// control server maps them onto the exact wire responses.
var (
	ErrDuplicateName  = errors.New("device already exists")
	ErrNotFound       = errors.New("device not found")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidChannel = errors.New("invalid channel")
)
