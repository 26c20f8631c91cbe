package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCoordinates is returned for missing, out-of-range, or (0,0) coordinates.
	ErrInvalidCoordinates = errors.New("invalid origin/destination coordinates")

	// ErrInvalidCredentials is returned when a login cannot be authenticated.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a token is missing, expired, or malformed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoRoute is returned when no provider produced a usable route.
	ErrNoRoute = errors.New("no provider returned a valid route")

	// ErrConflict is returned when creating an entity that already exists.
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput is returned for request payloads that fail validation.
	ErrInvalidInput = errors.New("invalid input")
)
