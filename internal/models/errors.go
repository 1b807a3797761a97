package models

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound            = errors.New("resource not found")
	ErrPreferencesNotFound = fmt.Errorf("user preferences: %w", ErrNotFound)

	// Auth
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Story generation
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrUnknownProvider     = errors.New("unknown ai provider")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)
