package auth

import (
	"context"
	"sync"
	"time"
)

// KeyedMutex is an in-process SubjectLocker. Entries are reference counted
// and dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

var _ SubjectLocker = (*KeyedMutex)(nil)

// NewKeyedMutex returns an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until the subject is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, subjectID string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[subjectID]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[subjectID] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(subjectID, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			k.release(subjectID, entry)
		})
	}, nil
}

func (k *KeyedMutex) release(subjectID string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, subjectID)
	}
}

// Len is the number of subjects currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// MemoryRevocations is an in-process RevocationStore.
type MemoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

var _ RevocationStore = (*MemoryRevocations)(nil)

// NewMemoryRevocations returns an empty store.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time)}
}

func (m *MemoryRevocations) RevokeAll(_ context.Context, subjectID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.UTC().Truncate(time.Second)
	if prev, ok := m.entries[subjectID]; ok && prev.After(at) {
		return nil
	}
	m.entries[subjectID] = at
	return nil
}

func (m *MemoryRevocations) RevokedBefore(_ context.Context, subjectID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.entries[subjectID]
	return at, ok, nil
}

// IsRevoked reports whether a token issued at issuedAt was issued no
// later than the subject's revocation mark. Granularity is one second,
// matching iat, so tokens minted in the revocation second are revoked too.
func IsRevoked(ctx context.Context, store RevocationStore, subjectID string, issuedAt time.Time) (bool, error) {
	if store == nil {
		return false, nil
	}
	before, ok, err := store.RevokedBefore(ctx, subjectID)
	if err != nil || !ok {
		return false, err
	}
	return !issuedAt.UTC().Truncate(time.Second).After(before), nil
}
