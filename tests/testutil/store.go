package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/nhle/pushline/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// MemPersister is a map-backed store.Persister with injectable failures.
type MemPersister struct {
	mu      sync.Mutex
	records map[string][]byte
	saves   int

	LoadErr   error
	SaveErr   error
	DeleteErr error
}

// NewMemPersister returns an empty persister.
func NewMemPersister() *MemPersister {
	return &MemPersister{records: make(map[string][]byte)}
}

func (p *MemPersister) Load(_ context.Context, name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return nil, p.LoadErr
	}
	data, ok := p.records[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (p *MemPersister) Save(_ context.Context, name string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SaveErr != nil {
		return p.SaveErr
	}
	p.saves++
	p.records[name] = append([]byte(nil), payload...)
	return nil
}

func (p *MemPersister) Delete(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DeleteErr != nil {
		return p.DeleteErr
	}
	delete(p.records, name)
	return nil
}

// Put seeds a raw record.
func (p *MemPersister) Put(name string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[name] = payload
}

// Record returns the raw record and whether it exists.
func (p *MemPersister) Record(name string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.records[name]
	return data, ok
}

// Saves returns the number of successful saves.
func (p *MemPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}
