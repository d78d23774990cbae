package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityCategory enumerates supported activity categories.
type ActivityCategory string

const (
	ActivityAccountCreated             ActivityCategory = "account_created"
	ActivityAccountDeletionRequested   ActivityCategory = "account_deletion_requested"
	ActivityAccountDeleted             ActivityCategory = "account_deleted"
	ActivityProfileUpdated             ActivityCategory = "profile_updated"
	ActivitySessionsRevoked            ActivityCategory = "sessions_revoked"
	ActivityPasswordResetRequested     ActivityCategory = "password_reset_requested"
	ActivityEmailVerificationRequested ActivityCategory = "email_verification_requested"
)

// NewActivityEntry builds an entry with a time ordered id.
func NewActivityEntry(subjectID string, category ActivityCategory, origin string, at time.Time, detail map[string]any) *ActivityLogEntry {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &ActivityLogEntry{
		ID:           id,
		SubjectID:    subjectID,
		Category:     category,
		Detail:       detail,
		ClientOrigin: origin,
		OccurredAt:   at.UTC().Truncate(time.Microsecond),
	}
}

// ActivityLogFunc adapts a function to an append only ActivityLog that
// cannot be listed.
type ActivityLogFunc func(ctx context.Context, entry *ActivityLogEntry) error

// Append implements ActivityLog.
func (f ActivityLogFunc) Append(ctx context.Context, entry *ActivityLogEntry) error {
	if f == nil {
		return nil
	}
	return f(ctx, entry)
}

// ListBySubject implements ActivityLog.
func (f ActivityLogFunc) ListBySubject(context.Context, string, int) ([]*ActivityLogEntry, error) {
	return nil, nil
}

type noopActivityLog struct{}

func (noopActivityLog) Append(context.Context, *ActivityLogEntry) error {
	return nil
}

func (noopActivityLog) ListBySubject(context.Context, string, int) ([]*ActivityLogEntry, error) {
	return nil, nil
}

func normalizeActivityLog(l ActivityLog) ActivityLog {
	if l == nil {
		return noopActivityLog{}
	}
	return l
}
