package haystack

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("refresh: %w", fetchError(ErrUpstreamUnavailable, 502, cause))

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.EqualError(t, err, "refresh: haystack: upstream unavailable (HTTP 502): connection reset")

	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
	assert.True(t, fe.Retryable())

	assert.EqualError(t, fetchError(ErrTimeout, 0, nil), ErrTimeout.Error())
	assert.False(t, fetchError(ErrMalformedRequest, 400, nil).Retryable())
}

func TestFetchErrorForStatus(t *testing.T) {
	tests := map[int]error{
		401: ErrAuthUnavailable,
		403: ErrAuthUnavailable,
		400: ErrMalformedRequest,
		422: ErrMalformedRequest,
		500: ErrUpstreamUnavailable,
		503: ErrUpstreamUnavailable,
		302: ErrUpstreamUnavailable,
	}
	for status, kind := range tests {
		assert.ErrorIs(t, fetchErrorForStatus(status), kind, "status %d", status)
	}
}
