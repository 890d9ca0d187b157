package service

import "errors"

// Sentinel errors for the service layer.
var (
	ErrNotFound                = errors.New("share not found")
	ErrExpired                 = errors.New("share has expired")
	ErrPasswordRequired        = errors.New("password required")
	ErrInvalidPassword         = errors.New("invalid password")
	ErrCodeGenerationExhausted = errors.New("could not allocate a unique share code")
	ErrContentTooLarge         = errors.New("content exceeds maximum allowed size")
	ErrInvalidInput            = errors.New("invalid input")
)

var gateErrors = []error{
	ErrNotFound,
	ErrExpired,
	ErrPasswordRequired,
	ErrInvalidPassword,
	ErrCodeGenerationExhausted,
	ErrContentTooLarge,
	ErrInvalidInput,
}

// IsGateFailure reports whether err is an expected outcome of a share
// operation rather than an infrastructure failure.
func IsGateFailure(err error) bool {
	for _, target := range gateErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
