package auth

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging contract used across the package. It matches the
// leveled key/value shape of go-logger's glog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Role() string
}

// IdentityVerifier is the boundary to the external identity authority.
// Side effecting calls are never retried by callers.
type IdentityVerifier interface {
	// VerifyToken decodes a bearer token into a Claim or fails with
	// ErrTokenExpired, ErrTokenInvalid or ErrSubjectNotFound.
	VerifyToken(ctx context.Context, token string) (*Claim, error)
	// RevokeSessions invalidates every token issued to the subject so far.
	RevokeSessions(ctx context.Context, subjectID string) error
	// PasswordResetLink fails with ErrSubjectNotFound for unknown emails.
	PasswordResetLink(ctx context.Context, email string) (string, error)
	EmailVerificationLink(ctx context.Context, email string) (string, error)
}

// Directory is the durable store of UserRecords keyed by subject id.
type Directory interface {
	GetBySubject(ctx context.Context, subjectID string) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	// Insert fails with ErrEmailConflict when the email or subject is taken.
	Insert(ctx context.Context, record *UserRecord) error
	// UpdateSynced writes the provider owned fields only if the stored
	// updated_at still equals expected, otherwise ErrStaleRecord.
	UpdateSynced(ctx context.Context, record *UserRecord, expected time.Time) error
	UpdateProfile(ctx context.Context, subjectID string, update ProfileUpdate, at time.Time) (*UserRecord, error)
	TouchLogin(ctx context.Context, subjectID string, at time.Time) error
	Deactivate(ctx context.Context, subjectID string, at time.Time) error
	Delete(ctx context.Context, subjectID string) error
}

// ActivityLog is an append only store of security relevant events.
type ActivityLog interface {
	Append(ctx context.Context, entry *ActivityLogEntry) error
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]*ActivityLogEntry, error)
}

// SubjectLocker provides a mutual exclusion region per subject id.
type SubjectLocker interface {
	Lock(ctx context.Context, subjectID string) (unlock func(), err error)
}

// RevocationStore keeps the instant before which a subject's tokens are void.
type RevocationStore interface {
	RevokeAll(ctx context.Context, subjectID string, at time.Time) error
	RevokedBefore(ctx context.Context, subjectID string) (time.Time, bool, error)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(format("[DBG] AUTH", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(format("[INF] AUTH", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(format("[WRN] AUTH", msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(format("[ERR] AUTH", msg, args...))
}

func format(prefix, msg string, args ...any) string {
	out := prefix + " " + msg
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
			continue
		}
		out += fmt.Sprintf(" %v", args[i])
	}
	return out
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards everything, handy in tests.
func NoopLogger() Logger {
	return noopLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
