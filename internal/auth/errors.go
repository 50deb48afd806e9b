package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrUnauthenticated means no usable principal accompanied the request.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrUnauthorized means the principal exists but may not perform the action.
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrIncorrectPassword  = errors.New("auth: current password is incorrect")
	ErrPasswordMismatch   = errors.New("auth: password confirmation does not match")

	// ErrCorruptCredential marks a stored hash that is not an argon2 string.
	ErrCorruptCredential = errors.New("auth: stored credential is not in a recognised format")

	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrMissingSecret = errors.New("auth: token secret is not configured")
	ErrEmptyPassword = errors.New("auth: password cannot be empty")
)
