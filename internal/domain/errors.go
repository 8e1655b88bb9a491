package domain

import "errors"

// Error kinds shared by every layer. Package level errors wrap one of these so the
// HTTP boundary can map them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrConflict   = errors.New("conflict")
	ErrGateway    = errors.New("payment gateway error")
)
