package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Activity() ActivityEntries
	EnsureSchema(ctx context.Context) error
}

type mngr struct {
	db       *bun.DB
	users    Users
	activity ActivityEntries
}

// NewRepositoryManager wires the bun repositories around an injected handle.
// The caller owns db and closes it on shutdown.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		users:    NewUsersRepository(db),
		activity: NewActivityRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.activity == nil {
		return errors.New("repository activity should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Activity() ActivityEntries {
	return m.activity
}

// EnsureSchema creates tables and indexes when missing.
func (m mngr) EnsureSchema(ctx context.Context) error {
	models := []any{(*UserRecord)(nil), (*ActivityLogEntry)(nil)}
	for _, model := range models {
		if _, err := m.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return Unreachable(err, "schema.create_table")
		}
	}

	_, err := m.db.NewCreateIndex().
		Model((*ActivityLogEntry)(nil)).
		Index("activity_log_subject_occurred_idx").
		Column("subject_id", "occurred_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return Unreachable(err, "schema.create_index")
	}
	return nil
}
