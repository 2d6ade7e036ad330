package auction

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the server rejects the credential (HTTP 401)
	ErrUnauthorized = errors.New("auction api: invalid credential")
	// ErrRateLimited is reported when the server answers HTTP 429
	ErrRateLimited = errors.New("auction api: rate limited")
	// ErrNoCredential is returned when no credential is configured
	ErrNoCredential = errors.New("auction api: no credential set")
)

// TransportError covers network failures, unexpected status codes and undecodable bodies
type TransportError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auction api: page %d: status %d: %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auction api: page %d: %v", e.Page, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
