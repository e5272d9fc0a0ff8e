package domain

import "errors"

var (
	ErrNotIdentified    = errors.New("connection not identified")
	ErrTenantMismatch   = errors.New("tenant mismatch")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrConnUnregistered = errors.New("connection not registered")
)
