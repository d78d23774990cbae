package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// Users is the bun backed Directory. The Tx variants let callers compose
// several writes inside RepositoryManager.RunInTx.
type Users interface {
	Directory

	GetBySubjectTx(ctx context.Context, tx bun.IDB, subjectID string) (*UserRecord, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserRecord, error)
	InsertTx(ctx context.Context, tx bun.IDB, record *UserRecord) error
	UpdateSyncedTx(ctx context.Context, tx bun.IDB, record *UserRecord, expected time.Time) error
	UpdateProfileTx(ctx context.Context, tx bun.IDB, subjectID string, update ProfileUpdate, at time.Time) (*UserRecord, error)
	TouchLoginTx(ctx context.Context, tx bun.IDB, subjectID string, at time.Time) error
	DeactivateTx(ctx context.Context, tx bun.IDB, subjectID string, at time.Time) error
	DeleteTx(ctx context.Context, tx bun.IDB, subjectID string) error
}

type users struct {
	db *bun.DB
}

var (
	_ Users     = (*users)(nil)
	_ Directory = (*users)(nil)
)

// NewUsersRepository builds the bun Directory.
func NewUsersRepository(db *bun.DB) Users {
	return &users{db: db}
}

func (a *users) GetBySubject(ctx context.Context, subjectID string) (*UserRecord, error) {
	return a.GetBySubjectTx(ctx, a.db, subjectID)
}

func (a *users) GetBySubjectTx(ctx context.Context, tx bun.IDB, subjectID string) (*UserRecord, error) {
	return a.getOneTx(ctx, tx, "subject_id", strings.TrimSpace(subjectID))
}

func (a *users) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*UserRecord, error) {
	return a.getOneTx(ctx, tx, "email", NormalizeEmail(email))
}

func (a *users) getOneTx(ctx context.Context, tx bun.IDB, column, value string) (*UserRecord, error) {
	if value == "" {
		return nil, WithSource(ErrNotFound, nil, map[string]any{column: value})
	}

	record := &UserRecord{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, WithSource(ErrNotFound, err, map[string]any{column: value})
		}
		return nil, Unreachable(err, "directory.get_by_"+column)
	}
	return record, nil
}

func (a *users) Insert(ctx context.Context, record *UserRecord) error {
	return a.InsertTx(ctx, a.db, record)
}

func (a *users) InsertTx(ctx context.Context, tx bun.IDB, record *UserRecord) error {
	prepareRecordDefaults(record)
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return WithSource(ErrEmailConflict, err, map[string]any{
				"subject_id": record.SubjectID,
				"email":      record.Email,
			})
		}
		return Unreachable(err, "directory.insert")
	}
	return nil
}

func (a *users) UpdateSynced(ctx context.Context, record *UserRecord, expected time.Time) error {
	return a.UpdateSyncedTx(ctx, a.db, record, expected)
}

func (a *users) UpdateSyncedTx(ctx context.Context, tx bun.IDB, record *UserRecord, expected time.Time) error {
	res, err := tx.NewUpdate().
		Model(record).
		Column("email", "email_verified", "display_name", "photo_url", "updated_at").
		Where("subject_id = ?", record.SubjectID).
		Where("updated_at = ?", stamp(expected)).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return WithSource(ErrEmailConflict, err, map[string]any{
				"subject_id": record.SubjectID,
				"email":      record.Email,
			})
		}
		return Unreachable(err, "directory.update_synced")
	}
	if affected(res) == 0 {
		return a.missOrStale(ctx, tx, record.SubjectID)
	}
	return nil
}

// missOrStale tells a vanished record apart from a lost conditional update.
func (a *users) missOrStale(ctx context.Context, tx bun.IDB, subjectID string) error {
	if _, err := a.GetBySubjectTx(ctx, tx, subjectID); err != nil {
		return err
	}
	return WithSource(ErrStaleRecord, nil, map[string]any{"subject_id": subjectID})
}

func (a *users) UpdateProfile(ctx context.Context, subjectID string, update ProfileUpdate, at time.Time) (*UserRecord, error) {
	var out *UserRecord
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.UpdateProfileTx(ctx, tx, subjectID, update, at)
		return err
	})
	return out, err
}

func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, subjectID string, update ProfileUpdate, at time.Time) (*UserRecord, error) {
	record, err := a.GetBySubjectTx(ctx, tx, subjectID)
	if err != nil {
		return nil, err
	}

	update.Apply(record)
	record.UpdatedAt = nextStamp(record.UpdatedAt, at)

	_, err = tx.NewUpdate().
		Model(record).
		Column("display_name", "profile", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, Unreachable(err, "directory.update_profile")
	}
	return record, nil
}

func (a *users) TouchLogin(ctx context.Context, subjectID string, at time.Time) error {
	return a.TouchLoginTx(ctx, a.db, subjectID, at)
}

func (a *users) TouchLoginTx(ctx context.Context, tx bun.IDB, subjectID string, at time.Time) error {
	at = stamp(at)
	res, err := tx.NewUpdate().
		Model((*UserRecord)(nil)).
		Set("last_login_at = ?", at).
		Where("subject_id = ?", subjectID).
		Exec(ctx)
	if err != nil {
		return Unreachable(err, "directory.touch_login")
	}
	if affected(res) == 0 {
		return WithSource(ErrNotFound, nil, map[string]any{"subject_id": subjectID})
	}
	return nil
}

func (a *users) Deactivate(ctx context.Context, subjectID string, at time.Time) error {
	return a.DeactivateTx(ctx, a.db, subjectID, at)
}

func (a *users) DeactivateTx(ctx context.Context, tx bun.IDB, subjectID string, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*UserRecord)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", stamp(at)).
		Where("subject_id = ?", subjectID).
		Exec(ctx)
	if err != nil {
		return Unreachable(err, "directory.deactivate")
	}
	if affected(res) == 0 {
		return WithSource(ErrNotFound, nil, map[string]any{"subject_id": subjectID})
	}
	return nil
}

func (a *users) Delete(ctx context.Context, subjectID string) error {
	return a.DeleteTx(ctx, a.db, subjectID)
}

func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, subjectID string) error {
	res, err := tx.NewDelete().
		Model((*UserRecord)(nil)).
		Where("subject_id = ?", subjectID).
		Exec(ctx)
	if err != nil {
		return Unreachable(err, "directory.delete")
	}
	if affected(res) == 0 {
		return WithSource(ErrNotFound, nil, map[string]any{"subject_id": subjectID})
	}
	return nil
}

func prepareRecordDefaults(record *UserRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = NormalizeEmail(record.Email)
	if !record.Role.IsValid() {
		record.Role = RoleStandard
	}
	if !record.Provider.IsValid() {
		record.Provider = ProviderPassword
	}
	record.CreatedAt = stamp(record.CreatedAt)
	record.UpdatedAt = stamp(record.UpdatedAt)
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
