package auth

import (
	"context"
	"time"
)

// RevocationOutcome is the internal result of a sign-out. Callers always
// see success, operators see this.
type RevocationOutcome string

const (
	// RevocationRevoked means every session of the subject was invalidated.
	RevocationRevoked RevocationOutcome = "revoked"
	// RevocationFailed means revocation did not complete but success was reported.
	RevocationFailed RevocationOutcome = "revocation_failed"
	// RevocationNoSession means no token came with the request.
	RevocationNoSession RevocationOutcome = "no_session"
)

// LogoutResult is the tagged result of SessionTerminator.Logout.
type LogoutResult struct {
	Outcome   RevocationOutcome
	SubjectID string
	Err       error
}

// Revoked reports whether server side revocation happened.
func (r LogoutResult) Revoked() bool {
	return r.Outcome == RevocationRevoked
}

// SessionTerminator revokes sessions without ever failing outward.
type SessionTerminator struct {
	verifier IdentityVerifier
	activity ActivityLog
	logger   Logger
	metrics  *Metrics
	now      func() time.Time
}

// TerminatorOption customizes a SessionTerminator.
type TerminatorOption func(*SessionTerminator)

// WithTerminatorLogger overrides the logger.
func WithTerminatorLogger(logger Logger) TerminatorOption {
	return func(t *SessionTerminator) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTerminatorMetrics sets the collectors.
func WithTerminatorMetrics(metrics *Metrics) TerminatorOption {
	return func(t *SessionTerminator) {
		t.metrics = metrics
	}
}

// WithTerminatorActivityLog sets where sessions_revoked entries go.
func WithTerminatorActivityLog(activity ActivityLog) TerminatorOption {
	return func(t *SessionTerminator) {
		t.activity = normalizeActivityLog(activity)
	}
}

// WithTerminatorClock injects a custom clock (useful for tests).
func WithTerminatorClock(clock func() time.Time) TerminatorOption {
	return func(t *SessionTerminator) {
		if clock != nil {
			t.now = clock
		}
	}
}

// NewSessionTerminator builds a terminator around the verifier.
func NewSessionTerminator(verifier IdentityVerifier, opts ...TerminatorOption) *SessionTerminator {
	t := &SessionTerminator{
		verifier: verifier,
		activity: noopActivityLog{},
		logger:   defLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Logout verifies token and revokes the subject's sessions. A token that
// cannot be verified is never used to revoke anything.
func (t *SessionTerminator) Logout(ctx context.Context, token string) LogoutResult {
	if token == "" {
		return t.finish(ctx, LogoutResult{Outcome: RevocationNoSession})
	}

	claim, err := t.verifier.VerifyToken(ctx, token)
	if err != nil {
		return t.finish(ctx, LogoutResult{Outcome: RevocationFailed, Err: err})
	}

	return t.RevokeSubject(ctx, claim.SubjectID)
}

// RevokeSubject revokes every session of a known subject.
func (t *SessionTerminator) RevokeSubject(ctx context.Context, subjectID string) LogoutResult {
	if err := t.verifier.RevokeSessions(ctx, subjectID); err != nil {
		return t.finish(ctx, LogoutResult{Outcome: RevocationFailed, SubjectID: subjectID, Err: err})
	}
	return t.finish(ctx, LogoutResult{Outcome: RevocationRevoked, SubjectID: subjectID})
}

func (t *SessionTerminator) finish(ctx context.Context, res LogoutResult) LogoutResult {
	t.metrics.ObserveRevocation(res.Outcome)

	switch res.Outcome {
	case RevocationFailed:
		t.logger.Warn("session revocation failed, reporting success to caller",
			"subject_id", res.SubjectID,
			"kind", string(ErrorKindOf(res.Err)),
			"error", res.Err,
		)
	case RevocationRevoked:
		t.logger.Info("sessions revoked", "subject_id", res.SubjectID)
		entry := NewActivityEntry(res.SubjectID, ActivitySessionsRevoked, ClientOriginFromContext(ctx), t.now(), nil)
		if err := t.activity.Append(ctx, entry); err != nil {
			t.metrics.ObserveActivityFailure(entry.Category)
			t.logger.Error("activity append failed", "category", string(entry.Category), "subject_id", res.SubjectID, "error", err)
		}
	default:
		t.logger.Debug("logout without session")
	}
	return res
}
