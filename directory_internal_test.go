package auth

import (
	"context"
	"sync"
	"time"
)

// mapDirectory is a minimal in-memory Directory for package internal tests.
type mapDirectory struct {
	mu      sync.Mutex
	records map[string]*UserRecord
}

func newMapDirectory() *mapDirectory {
	return &mapDirectory{records: make(map[string]*UserRecord)}
}

func (d *mapDirectory) GetBySubject(_ context.Context, subjectID string) (*UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.records[subjectID]; ok {
		return r.Clone(), nil
	}
	return nil, WithSource(ErrNotFound, nil, nil)
}

func (d *mapDirectory) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.records {
		if r.Email == NormalizeEmail(email) {
			return r.Clone(), nil
		}
	}
	return nil, WithSource(ErrNotFound, nil, nil)
}

func (d *mapDirectory) Insert(_ context.Context, record *UserRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.records {
		if r.Email == record.Email || r.SubjectID == record.SubjectID {
			return WithSource(ErrEmailConflict, nil, nil)
		}
	}
	d.records[record.SubjectID] = record.Clone()
	return nil
}

func (d *mapDirectory) UpdateSynced(_ context.Context, record *UserRecord, expected time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.records[record.SubjectID]
	if !ok {
		return WithSource(ErrNotFound, nil, nil)
	}
	if !current.UpdatedAt.Equal(expected) {
		return WithSource(ErrStaleRecord, nil, nil)
	}
	d.records[record.SubjectID] = record.Clone()
	return nil
}

func (d *mapDirectory) UpdateProfile(_ context.Context, subjectID string, update ProfileUpdate, at time.Time) (*UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.records[subjectID]
	if !ok {
		return nil, WithSource(ErrNotFound, nil, nil)
	}
	update.Apply(current)
	current.UpdatedAt = nextStamp(current.UpdatedAt, at)
	return current.Clone(), nil
}

func (d *mapDirectory) TouchLogin(_ context.Context, subjectID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.records[subjectID]
	if !ok {
		return WithSource(ErrNotFound, nil, nil)
	}
	at = stamp(at)
	current.LastLoginAt = &at
	return nil
}

func (d *mapDirectory) Deactivate(_ context.Context, subjectID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.records[subjectID]
	if !ok {
		return WithSource(ErrNotFound, nil, nil)
	}
	current.IsActive = false
	current.UpdatedAt = stamp(at)
	return nil
}

func (d *mapDirectory) Delete(_ context.Context, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.records[subjectID]; !ok {
		return WithSource(ErrNotFound, nil, nil)
	}
	delete(d.records, subjectID)
	return nil
}
