package userstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and for host applications
// that persist the record elsewhere and only need the primary-key
// semantics. It serializes writes with a mutex, satisfying the "never a
// torn row" read/write guarantee spec.md §5 requires of any Store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]UserRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]UserRecord)}
}

var _ Store = (*MemoryStore)(nil)

func key(userID, projectID string) string { return projectID + "\x00" + userID }

func (m *MemoryStore) Add(_ context.Context, rec UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key(rec.UserID, rec.ProjectID)] = rec
	return nil
}

func (m *MemoryStore) Update(_ context.Context, rec UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key(rec.UserID, rec.ProjectID)] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, rec UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key(rec.UserID, rec.ProjectID))
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID, projectID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(userID, projectID)]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) All(_ context.Context) ([]UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UserRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}
