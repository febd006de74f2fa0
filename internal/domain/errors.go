package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrSeatConflict  = errors.New("seat already booked")
	ErrStopOrder     = errors.New("pickup must precede dropoff")
	ErrInvalidState  = errors.New("invalid booking state")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCodeExhausted = errors.New("booking code generation exhausted")
	ErrBadSignature  = errors.New("invalid webhook signature")
)
