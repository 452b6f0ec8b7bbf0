package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// NetworkError is returned when the backend could not be reached at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return "Network error: Unable to connect to server"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is returned for 4xx responses other than 401 and 429.
type ValidationError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Validation failed"
}

// UnauthorizedError is returned when the backend rejects the bearer token.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// RateLimitError is returned for HTTP 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "too many requests"
}

// ServerError is returned for 5xx and any status the client does not recognise.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// DomainError is a business rule rejection decided on this side of the wire.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// DecodeError is returned when a response body does not have the expected envelope shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unexpected response format: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UserMessage returns the message of the first typed error in the chain,
// falling back to err.Error(). Wrapping context added with %w stays out of
// what the shopper sees.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		netErr   *NetworkError
		valErr   *ValidationError
		authErr  *UnauthorizedError
		rateErr  *RateLimitError
		srvErr   *ServerError
		domErr   *DomainError
		decodErr *DecodeError
	)
	switch {
	case stderrors.As(err, &netErr):
		return netErr.Error()
	case stderrors.As(err, &valErr):
		return valErr.Error()
	case stderrors.As(err, &authErr):
		return authErr.Error()
	case stderrors.As(err, &rateErr):
		return rateErr.Error()
	case stderrors.As(err, &srvErr):
		return srvErr.Error()
	case stderrors.As(err, &domErr):
		return domErr.Error()
	case stderrors.As(err, &decodErr):
		return decodErr.Error()
	}
	return err.Error()
}

// IsRateLimited reports whether err carries a RateLimitError.
func IsRateLimited(err error) bool {
	var rateErr *RateLimitError
	return stderrors.As(err, &rateErr)
}
