package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-print"
)

const defaultSyncAttempts = 3

// Reconcile outcome labels.
const (
	ReconcileCreated  = "created"
	ReconcileUpdated  = "updated"
	ReconcileConflict = "conflict"
	ReconcileFailed   = "failed"
)

// SyncEngine keeps the Directory in agreement with verified claims and owns
// the account deletion protocol.
type SyncEngine struct {
	directory   Directory
	activity    ActivityLog
	locker      SubjectLocker
	logger      Logger
	metrics     *Metrics
	now         func() time.Time
	maxAttempts int
}

// SyncOption customizes the engine.
type SyncOption func(*SyncEngine)

// WithSyncClock injects a custom clock (useful for tests).
func WithSyncClock(clock func() time.Time) SyncOption {
	return func(s *SyncEngine) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSyncLocker replaces the in-process lock table, e.g. with a redis lock
// when several replicas share a directory.
func WithSyncLocker(locker SubjectLocker) SyncOption {
	return func(s *SyncEngine) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithSyncLogger overrides the logger.
func WithSyncLogger(logger Logger) SyncOption {
	return func(s *SyncEngine) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncMetrics sets the collectors.
func WithSyncMetrics(metrics *Metrics) SyncOption {
	return func(s *SyncEngine) {
		s.metrics = metrics
	}
}

// WithSyncAttempts bounds retries after a lost conditional update.
func WithSyncAttempts(n int) SyncOption {
	return func(s *SyncEngine) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewSyncEngine builds an engine over the injected stores.
func NewSyncEngine(directory Directory, activity ActivityLog, opts ...SyncOption) *SyncEngine {
	s := &SyncEngine{
		directory:   directory,
		activity:    normalizeActivityLog(activity),
		locker:      NewKeyedMutex(),
		logger:      defLogger{},
		now:         time.Now,
		maxAttempts: defaultSyncAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Reconcile creates the record on first sight of a subject and refreshes the
// provider owned fields afterwards. Role, profile and created_at are left alone.
func (s *SyncEngine) Reconcile(ctx context.Context, claim Claim) (*UserRecord, error) {
	if err := claim.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, claim.SubjectID)
	if err != nil {
		return nil, Unreachable(err, "sync.lock")
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		record, created, err := s.reconcileOnce(ctx, claim)
		if err == nil {
			if created {
				s.metrics.ObserveReconcile(ReconcileCreated)
			} else {
				s.metrics.ObserveReconcile(ReconcileUpdated)
			}
			return record, nil
		}

		if !isStale(err) {
			if IsEmailConflict(err) {
				s.metrics.ObserveReconcile(ReconcileConflict)
				s.logger.Warn("reconcile rejected, email owned by another subject",
					"subject_id", claim.SubjectID,
					"error", print.MaybePrettyJSON(err),
				)
			} else {
				s.metrics.ObserveReconcile(ReconcileFailed)
			}
			return nil, err
		}

		lastErr = err
		s.logger.Debug("reconcile lost a concurrent update", "subject_id", claim.SubjectID, "attempt", attempt)
	}

	s.metrics.ObserveReconcile(ReconcileFailed)
	return nil, WithSource(ErrUnexpected, lastErr, map[string]any{
		"subject_id": claim.SubjectID,
		"attempts":   s.maxAttempts,
	})
}

func (s *SyncEngine) reconcileOnce(ctx context.Context, claim Claim) (*UserRecord, bool, error) {
	existing, err := s.directory.GetBySubject(ctx, claim.SubjectID)
	if err == nil {
		record, err := s.refresh(ctx, existing, claim)
		return record, false, err
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	email := claim.NormalizedEmail()
	owner, err := s.directory.GetByEmail(ctx, email)
	if err == nil {
		return nil, false, emailConflict(claim.SubjectID, email, owner)
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	now := stamp(s.now())
	record := &UserRecord{
		SubjectID:     claim.SubjectID,
		Email:         email,
		DisplayName:   claim.DisplayName,
		PhotoURL:      claim.PhotoURL,
		Provider:      claim.Provider,
		EmailVerified: claim.EmailVerified,
		Role:          RoleStandard,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.directory.Insert(ctx, record); err != nil {
		if IsEmailConflict(err) {
			// another writer created this subject between our reads
			if _, getErr := s.directory.GetBySubject(ctx, claim.SubjectID); getErr == nil {
				return nil, false, WithSource(ErrStaleRecord, err, map[string]any{"subject_id": claim.SubjectID})
			}
		}
		return nil, false, err
	}

	s.record(ctx, NewActivityEntry(record.SubjectID, ActivityAccountCreated, ClientOriginFromContext(ctx), now, map[string]any{
		"email":    record.Email,
		"provider": string(record.Provider),
	}))

	return record, true, nil
}

func (s *SyncEngine) refresh(ctx context.Context, existing *UserRecord, claim Claim) (*UserRecord, error) {
	email := claim.NormalizedEmail()
	if email != existing.Email {
		owner, err := s.directory.GetByEmail(ctx, email)
		switch {
		case err == nil && owner.SubjectID != existing.SubjectID:
			return nil, emailConflict(claim.SubjectID, email, owner)
		case err != nil && !IsNotFound(err):
			return nil, err
		}
	}

	next := existing.Clone()
	next.Email = email
	next.EmailVerified = claim.EmailVerified
	if claim.DisplayName != "" {
		next.DisplayName = claim.DisplayName
	}
	if claim.PhotoURL != "" {
		next.PhotoURL = claim.PhotoURL
	}
	next.UpdatedAt = nextStamp(existing.UpdatedAt, s.now())

	if err := s.directory.UpdateSynced(ctx, next, existing.UpdatedAt); err != nil {
		return nil, err
	}
	return next, nil
}

// TouchLogin stamps last_login_at. A record that vanished since the token
// was verified is logged and otherwise ignored.
func (s *SyncEngine) TouchLogin(ctx context.Context, subjectID string) {
	err := s.directory.TouchLogin(ctx, subjectID, s.now())
	if err == nil {
		return
	}
	if IsNotFound(err) {
		s.logger.Warn("touch login skipped, record not found", "subject_id", subjectID)
		return
	}
	s.logger.Error("touch login failed", "subject_id", subjectID, "error", err)
}

// DeleteAccount records intent, captures the record in the audit trail and
// then removes it. The two stores are not transactional: a failure after the
// account_deleted entry leaves that entry behind with the record intact.
func (s *SyncEngine) DeleteAccount(ctx context.Context, subjectID string) error {
	unlock, err := s.locker.Lock(ctx, subjectID)
	if err != nil {
		return Unreachable(err, "sync.lock")
	}
	defer unlock()

	origin := ClientOriginFromContext(ctx)

	requested := NewActivityEntry(subjectID, ActivityAccountDeletionRequested, origin, s.now(), nil)
	if err := s.activity.Append(ctx, requested); err != nil {
		s.metrics.ObserveActivityFailure(requested.Category)
		return Unreachable(err, "activity.append")
	}

	record, err := s.directory.GetBySubject(ctx, subjectID)
	if err != nil {
		return err
	}

	deleted := NewActivityEntry(subjectID, ActivityAccountDeleted, origin, s.now(), map[string]any{
		"email":        record.Email,
		"display_name": record.DisplayName,
		"role":         string(record.Role),
		"created_at":   record.CreatedAt.Format(time.RFC3339),
	})
	if err := s.activity.Append(ctx, deleted); err != nil {
		s.metrics.ObserveActivityFailure(deleted.Category)
		return Unreachable(err, "activity.append")
	}

	if err := s.directory.Deactivate(ctx, subjectID, s.now()); err != nil {
		s.logger.Error("account deletion stopped after audit entry", "subject_id", subjectID, "step", "deactivate", "error", err)
		return err
	}

	if err := s.directory.Delete(ctx, subjectID); err != nil {
		s.logger.Error("account deletion stopped after audit entry", "subject_id", subjectID, "step", "delete", "error", err)
		return err
	}

	s.logger.Info("account deleted", "subject_id", subjectID)
	return nil
}

// UpdateProfile changes display_name and the nested profile only.
func (s *SyncEngine) UpdateProfile(ctx context.Context, subjectID string, update ProfileUpdate) (*UserRecord, error) {
	update = normalizeProfileUpdate(update)
	if err := update.Validate(); err != nil {
		return nil, WithSource(ErrValidation, err, map[string]any{"reason": err.Error()})
	}

	unlock, err := s.locker.Lock(ctx, subjectID)
	if err != nil {
		return nil, Unreachable(err, "sync.lock")
	}
	defer unlock()

	var (
		record  *UserRecord
		lastErr error
	)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		record, err = s.directory.UpdateProfile(ctx, subjectID, update, s.now())
		if err == nil || !isStale(err) {
			break
		}
		lastErr = err
		s.logger.Debug("profile update lost a concurrent update", "subject_id", subjectID, "attempt", attempt)
	}
	if err != nil {
		if isStale(err) {
			return nil, WithSource(ErrUnexpected, lastErr, map[string]any{
				"subject_id": subjectID,
				"attempts":   s.maxAttempts,
			})
		}
		return nil, err
	}

	s.record(ctx, NewActivityEntry(subjectID, ActivityProfileUpdated, ClientOriginFromContext(ctx), s.now(), map[string]any{
		"fields": strings.Join(update.ChangedFields(), ","),
	}))

	return record, nil
}

// Activity lists the subject's own audit trail.
func (s *SyncEngine) Activity(ctx context.Context, subjectID string, limit int) ([]*ActivityLogEntry, error) {
	return s.activity.ListBySubject(ctx, subjectID, limit)
}

// Record appends a non destructive entry. Failures are logged and counted.
func (s *SyncEngine) Record(ctx context.Context, entry *ActivityLogEntry) {
	s.record(ctx, entry)
}

func (s *SyncEngine) record(ctx context.Context, entry *ActivityLogEntry) {
	if entry == nil {
		return
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.metrics.ObserveActivityFailure(entry.Category)
		s.logger.Error("activity append failed", "category", string(entry.Category), "subject_id", entry.SubjectID, "error", err)
	}
}

// Now exposes the engine clock to collaborators sharing it.
func (s *SyncEngine) Now() time.Time {
	return s.now()
}

func emailConflict(subjectID, email string, owner *UserRecord) error {
	meta := map[string]any{
		"subject_id": subjectID,
		"email":      email,
	}
	if owner != nil {
		meta["owner_subject_id"] = owner.SubjectID
	}
	return WithSource(ErrEmailConflict, nil, meta)
}
