package haystack

import (
	"errors"
	"fmt"
)

// Key derivation
var (
	ErrInvalidSecretLength = errors.New("haystack: invalid master secret length")
)

// Fetch: any of these aborts the whole fetch.
var (
	ErrAuthUnavailable     = errors.New("haystack: no usable search party credential")
	ErrTimeout             = errors.New("haystack: fetch deadline exceeded")
	ErrUpstreamUnavailable = errors.New("haystack: upstream unavailable")
	ErrMalformedRequest    = errors.New("haystack: upstream rejected request")
)

// Per-report errors. They only ever skip the report they belong to.
var (
	ErrUnknownKey           = errors.New("haystack: report does not match any derived key")
	ErrAuthenticationFailed = errors.New("haystack: report authentication failed")
	ErrMalformedPayload     = errors.New("haystack: malformed report payload")
)

// FetchError is returned by every failed fetch. Kind is one of the fetch sentinels above.
type FetchError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a fresh attempt may succeed without operator action.
func (e *FetchError) Retryable() bool {
	return e.Kind == ErrTimeout || e.Kind == ErrUpstreamUnavailable
}

func fetchError(kind error, status int, err error) *FetchError {
	return &FetchError{Kind: kind, StatusCode: status, Err: err}
}

func fetchErrorForStatus(status int) *FetchError {
	switch {
	case status == 401 || status == 403:
		return fetchError(ErrAuthUnavailable, status, nil)
	case status >= 400 && status < 500:
		return fetchError(ErrMalformedRequest, status, nil)
	default:
		return fetchError(ErrUpstreamUnavailable, status, nil)
	}
}
