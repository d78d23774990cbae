package auth

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthenticated  = "UNAUTHENTICATED"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenInvalid     = "TOKEN_INVALID"
	TextCodeSubjectNotFound  = "SUBJECT_NOT_FOUND"
	TextCodeNotFound         = "NOT_FOUND"
	TextCodeEmailConflict    = "EMAIL_CONFLICT"
	TextCodeUnreachable      = "UNREACHABLE"
	TextCodeUnexpected       = "UNEXPECTED"
	TextCodeValidationFailed = "VALIDATION_FAILED"
	TextCodeStaleRecord      = "STALE_RECORD"
)

// ErrUnauthenticated is returned when the bearer token is missing or malformed.
var ErrUnauthenticated = goerrors.New("missing or malformed bearer token", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when the token is past its expiry.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid covers bad signatures, wrong audience/issuer and revoked tokens.
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrSubjectNotFound is returned by the verifier when no external identity matches.
var ErrSubjectNotFound = goerrors.New("subject not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeSubjectNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNotFound is returned when a valid identity has no local record.
var ErrNotFound = goerrors.New("user record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmailConflict is returned when a write would collide with another subject's email.
var ErrEmailConflict = goerrors.New("email already belongs to another account", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailConflict).
	WithCode(goerrors.CodeConflict)

// ErrUnreachable wraps failures talking to the directory or the verifier.
var ErrUnreachable = goerrors.New("external service unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeUnreachable).
	WithCode(http.StatusServiceUnavailable)

// ErrUnexpected is the catch all.
var ErrUnexpected = goerrors.New("unexpected error", goerrors.CategoryInternal).
	WithTextCode(TextCodeUnexpected).
	WithCode(http.StatusInternalServerError)

// ErrValidation is returned for rejected request payloads.
var ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeBadRequest)

// ErrStaleRecord is returned by conditional directory updates that lost a race.
var ErrStaleRecord = goerrors.New("record changed since it was read", goerrors.CategoryConflict).
	WithTextCode(TextCodeStaleRecord).
	WithCode(goerrors.CodeConflict)

// ErrorKind is the taxonomy every failure collapses into at the edge.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindTokenExpired    ErrorKind = "token_expired"
	KindTokenInvalid    ErrorKind = "token_invalid"
	KindSubjectNotFound ErrorKind = "subject_not_found"
	KindNotFound        ErrorKind = "not_found"
	KindEmailConflict   ErrorKind = "email_conflict"
	KindValidation      ErrorKind = "validation"
	KindUnreachable     ErrorKind = "unreachable"
	KindUnexpected      ErrorKind = "unexpected"
)

var kindByTextCode = map[string]ErrorKind{
	TextCodeUnauthenticated:  KindUnauthenticated,
	TextCodeTokenExpired:     KindTokenExpired,
	TextCodeTokenInvalid:     KindTokenInvalid,
	TextCodeSubjectNotFound:  KindSubjectNotFound,
	TextCodeNotFound:         KindNotFound,
	TextCodeEmailConflict:    KindEmailConflict,
	TextCodeValidationFailed: KindValidation,
	TextCodeUnreachable:      KindUnreachable,
}

// ErrorKindOf classifies err. Anything unknown is KindUnexpected.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if kind, ok := kindByTextCode[richErr.TextCode]; ok {
			return kind
		}
	}
	return KindUnexpected
}

// StatusFor maps an error to the HTTP status exposed to callers.
func StatusFor(err error) int {
	switch ErrorKindOf(err) {
	case KindUnauthenticated, KindTokenExpired, KindTokenInvalid:
		return http.StatusUnauthorized
	case KindNotFound, KindSubjectNotFound:
		return http.StatusNotFound
	case KindEmailConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HasTextCode reports whether err is a rich error carrying code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenInvalid) || HasTextCode(err, TextCodeUnauthenticated) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed")
}

// IsNotFound reports local record misses.
func IsNotFound(err error) bool {
	return HasTextCode(err, TextCodeNotFound)
}

// IsSubjectNotFound reports verifier side misses.
func IsSubjectNotFound(err error) bool {
	return HasTextCode(err, TextCodeSubjectNotFound)
}

// IsEmailConflict reports email collisions.
func IsEmailConflict(err error) bool {
	return HasTextCode(err, TextCodeEmailConflict)
}

func isStale(err error) bool {
	return HasTextCode(err, TextCodeStaleRecord)
}

// WithSource clones a sentinel, attaches the cause and optional metadata.
func WithSource(sentinel *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := sentinel.Clone()
	clone.Source = source
	if len(metadata) > 0 {
		clone = clone.WithMetadata(metadata)
	}
	return clone
}

// Unreachable wraps an infrastructure failure unless it is already classified.
func Unreachable(err error, op string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return err
	}
	return WithSource(ErrUnreachable, err, map[string]any{"operation": op})
}
