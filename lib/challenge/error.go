package challenge

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotFound      = errors.New("challenge: not found")
	ErrExpired       = errors.New("challenge: expired")
	ErrAlreadyUsed   = errors.New("challenge: already used")
	ErrWrongAnswer   = errors.New("challenge: wrong answer")
	ErrMissingField  = errors.New("challenge: missing field")
	ErrInvalidFormat = errors.New("challenge: field has invalid format")
)

func NewError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusForbidden,
	}
}

// Error is a failure that is safe to show to the user. PublicReason is a
// localization message ID, PrivateReason is what gets logged.
type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
	// Cooldown is set when the user has to wait before trying again.
	Cooldown time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("challenge: error when processing challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}

// WithStatus sets the HTTP status code and returns e.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithCooldown sets the retry delay and returns e.
func (e *Error) WithCooldown(d time.Duration) *Error {
	e.Cooldown = d
	return e
}
