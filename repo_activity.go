package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultActivityLimit caps activity listings when callers pass no limit.
const DefaultActivityLimit = 50

const maxActivityLimit = 500

// ActivityEntries is the bun backed ActivityLog.
type ActivityEntries interface {
	ActivityLog
	AppendTx(ctx context.Context, tx bun.IDB, entry *ActivityLogEntry) error
	ListBySubjectTx(ctx context.Context, tx bun.IDB, subjectID string, limit int, criteria ...repository.SelectCriteria) ([]*ActivityLogEntry, error)
}

type activityEntries struct {
	db *bun.DB
}

var _ ActivityEntries = (*activityEntries)(nil)

// NewActivityRepository builds the bun ActivityLog.
func NewActivityRepository(db *bun.DB) ActivityEntries {
	return &activityEntries{db: db}
}

func (r *activityEntries) Append(ctx context.Context, entry *ActivityLogEntry) error {
	return r.AppendTx(ctx, r.db, entry)
}

func (r *activityEntries) AppendTx(ctx context.Context, tx bun.IDB, entry *ActivityLogEntry) error {
	if entry == nil {
		return nil
	}
	if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
		return Unreachable(err, "activity.append")
	}
	return nil
}

func (r *activityEntries) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*ActivityLogEntry, error) {
	return r.ListBySubjectTx(ctx, r.db, subjectID, limit)
}

// ListBySubjectTx returns entries oldest first.
func (r *activityEntries) ListBySubjectTx(ctx context.Context, tx bun.IDB, subjectID string, limit int, criteria ...repository.SelectCriteria) ([]*ActivityLogEntry, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	var entries []*ActivityLogEntry
	q := tx.NewSelect().Model(&entries)
	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.subject_id = ?", subjectID).
		OrderExpr("?TableAlias.occurred_at ASC, ?TableAlias.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, Unreachable(err, "activity.list")
	}
	return entries, nil
}
