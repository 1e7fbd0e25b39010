package models

import "errors"

var (
	ErrUnknownField      = errors.New("unknown player field")
	ErrMalformedEvent    = errors.New("malformed event")
	ErrInvalidConstraint = errors.New("invalid constraint")
)
