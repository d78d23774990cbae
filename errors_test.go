package auth_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-growth-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   auth.ErrorKind
		status int
	}{
		{name: "unauthenticated", err: auth.ErrUnauthenticated, kind: auth.KindUnauthenticated, status: http.StatusUnauthorized},
		{name: "expired", err: auth.ErrTokenExpired, kind: auth.KindTokenExpired, status: http.StatusUnauthorized},
		{name: "invalid", err: auth.ErrTokenInvalid, kind: auth.KindTokenInvalid, status: http.StatusUnauthorized},
		{name: "subject not found", err: auth.ErrSubjectNotFound, kind: auth.KindSubjectNotFound, status: http.StatusNotFound},
		{name: "record not found", err: auth.ErrNotFound, kind: auth.KindNotFound, status: http.StatusNotFound},
		{name: "email conflict", err: auth.ErrEmailConflict, kind: auth.KindEmailConflict, status: http.StatusConflict},
		{name: "validation", err: auth.ErrValidation, kind: auth.KindValidation, status: http.StatusBadRequest},
		{name: "unreachable", err: auth.ErrUnreachable, kind: auth.KindUnreachable, status: http.StatusInternalServerError},
		{name: "stale is internal", err: auth.ErrStaleRecord, kind: auth.KindUnexpected, status: http.StatusInternalServerError},
		{name: "plain error", err: errors.New("boom"), kind: auth.KindUnexpected, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, auth.ErrorKindOf(tt.err))
			assert.Equal(t, tt.status, auth.StatusFor(tt.err))
		})
	}

	assert.Equal(t, auth.ErrorKind(""), auth.ErrorKindOf(nil))
}

func TestWithSourceLeavesSentinelUntouched(t *testing.T) {
	cause := errors.New("socket closed")
	err := auth.WithSource(auth.ErrNotFound, cause, map[string]any{"subject_id": "sub-1"})

	assert.True(t, auth.IsNotFound(err))
	assert.Equal(t, "sub-1", err.Metadata["subject_id"])
	assert.Same(t, cause, err.Source)
	assert.Nil(t, auth.ErrNotFound.Source)
	assert.Empty(t, auth.ErrNotFound.Metadata)
}

func TestUnreachable(t *testing.T) {
	assert.NoError(t, auth.Unreachable(nil, "op"))

	wrapped := auth.Unreachable(errors.New("dial tcp: refused"), "directory.get")
	assert.Equal(t, auth.KindUnreachable, auth.ErrorKindOf(wrapped))

	var rich *goerrors.Error
	require.True(t, goerrors.As(wrapped, &rich))
	assert.Equal(t, "directory.get", rich.Metadata["operation"])

	classified := auth.WithSource(auth.ErrEmailConflict, nil, nil)
	assert.Same(t, classified, auth.Unreachable(classified, "directory.insert"))
}

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "structured", err: auth.ErrTokenExpired, expected: true},
		{name: "string match", err: errors.New("some wrapper: token is expired"), expected: true},
		{name: "different structured", err: auth.ErrTokenInvalid, expected: false},
		{name: "different plain", err: errors.New("invalid token"), expected: false},
		{name: "nil", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsTokenExpiredError(tt.err))
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	assert.True(t, auth.IsMalformedError(auth.ErrUnauthenticated))
	assert.True(t, auth.IsMalformedError(errors.New("token is malformed: could not base64 decode")))
	assert.False(t, auth.IsMalformedError(auth.ErrNotFound))
	assert.False(t, auth.IsMalformedError(nil))
}
