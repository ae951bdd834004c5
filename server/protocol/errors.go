package protocol

import "errors"

// errors for parsing and building
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrMalformedHeader  = errors.New("malformed header")
	ErrUnknownStatus    = errors.New("unknown status code")
)
