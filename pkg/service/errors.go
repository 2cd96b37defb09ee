package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyFormat and ErrKeyAlreadyTaken are user-correctable.
	ErrInvalidKeyFormat = errors.New("short key must be 1-20 letters, digits, '-' or '_'")
	ErrKeyAlreadyTaken  = errors.New("short key is already taken")

	// ErrKeySpaceExhausted means the auto-key retry ceiling was hit. It is a
	// server-side capacity problem, not a caller mistake.
	ErrKeySpaceExhausted = errors.New("could not allocate a unique short key")

	// ErrNotFound and ErrExpired look identical to a visitor.
	ErrNotFound = errors.New("short link not found")
	ErrExpired  = errors.New("short link has expired")

	ErrInvalidURL    = errors.New("invalid URL")
	ErrAccessDenied  = errors.New("access denied: not the owner of this link")
	ErrOwnerRequired = errors.New("owner_id not found in context")
)

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsLinkUnavailable reports whether err means "no such short link" to an
// end user.
func IsLinkUnavailable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired)
}

// IsUserCorrectable reports whether the caller can fix err by changing the
// request.
func IsUserCorrectable(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidKeyFormat) ||
		errors.Is(err, ErrKeyAlreadyTaken) ||
		errors.Is(err, ErrInvalidURL)
}
