package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-growth-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// MockVerifier implements auth.IdentityVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyToken(ctx context.Context, token string) (*auth.Claim, error) {
	args := m.Called(ctx, token)
	claim, _ := args.Get(0).(*auth.Claim)
	return claim, args.Error(1)
}

func (m *MockVerifier) RevokeSessions(ctx context.Context, subjectID string) error {
	args := m.Called(ctx, subjectID)
	return args.Error(0)
}

func (m *MockVerifier) PasswordResetLink(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockVerifier) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

// memoryActivity is an in-memory auth.ActivityLog that can be told to fail
// for one category.
type memoryActivity struct {
	mu      sync.Mutex
	entries []*auth.ActivityLogEntry
	failOn  auth.ActivityCategory
}

func (m *memoryActivity) Append(_ context.Context, entry *auth.ActivityLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && entry.Category == m.failOn {
		return errors.New("activity store offline")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryActivity) ListBySubject(_ context.Context, subjectID string, limit int) ([]*auth.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.ActivityLogEntry
	for _, e := range m.entries {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryActivity) categories() []auth.ActivityCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.ActivityCategory, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Category)
	}
	return out
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRepository opens a private in-memory SQLite database with the
// schema in place.
func newTestRepository(t *testing.T) auth.RepositoryManager {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func testClaim(subject, email string) auth.Claim {
	return auth.Claim{
		SubjectID:     subject,
		Email:         email,
		EmailVerified: true,
		DisplayName:   "Ada Lovelace",
		PhotoURL:      "https://cdn.example.com/ada.png",
		Provider:      auth.ProviderGoogle,
	}
}
