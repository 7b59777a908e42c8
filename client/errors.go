package client

import "errors"

// ErrServerUnreachable is returned when no HTTP response could be obtained,
// after all connection-level retries (where applicable) were exhausted.
var ErrServerUnreachable = errors.New("Unable to reach the server. Please check your connection and try again.")

// APIError is an HTTP error response translated into a message that can be
// shown to the user as-is. Raw status codes and bodies never propagate past
// this package.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// User-facing messages for the auth endpoints. Server-provided messages take
// precedence where the contract allows it.
const (
	msgInvalidCredentials = "Invalid email or password."
	msgVerifyEmail        = "Please verify your email address before logging in."
	msgRateLimited        = "Too many attempts. Please wait a minute and try again."
	msgServerError        = "Something went wrong on our end. Please try again later."
	msgGenericFallback    = "Something went wrong. Please try again."
	msgAccountExists      = "An account with this email already exists."
)
