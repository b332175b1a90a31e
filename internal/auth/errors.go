package auth

import (
	"errors"

	"taskboard/internal/repository"
)

var (
	// ErrInvalidCredentials covers an unknown email and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountExists is returned when signing up with a registered email.
	ErrAccountExists = repository.ErrUserExists
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrWeakPassword  = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong guards bcrypt's 72-byte input limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
	// ErrFederatedUnavailable is returned when no usable external identity was supplied.
	ErrFederatedUnavailable = errors.New("federated sign-in unavailable")
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrTokensDisabled       = errors.New("token sign-in is not configured")
)

// Message turns an auth error into text fit for the user. Unknown errors get
// the generic message so internals never leak.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Wrong email or password."
	case errors.Is(err, ErrAccountExists):
		return "An account with this email already exists."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 8 characters."
	case errors.Is(err, ErrPasswordTooLong):
		return "Password must be at most 72 characters."
	case errors.Is(err, ErrFederatedUnavailable):
		return "External sign-in is not available here. Continuing as a guest."
	case errors.Is(err, ErrExpiredToken):
		return "Your sign-in link has expired."
	default:
		return "Something went wrong. Please try again."
	}
}
