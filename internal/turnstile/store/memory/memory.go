package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

// Store keeps identities and the access log in process memory. Units of work
// are serialized under one lock and applied only when the TxFn succeeds.
// It is intended for use in tests and dev environments.
type Store struct {
	mu         sync.RWMutex
	identities map[string]store.IdentityRecord
	byCred     map[string]string // credential_id -> student_id
	events     []store.AccessEventRecord
	nextID     int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		identities: make(map[string]store.IdentityRecord),
		byCred:     make(map[string]string),
		nextID:     1,
	}
}

func (s *Store) Do(ctx context.Context, fn store.TxFn) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{
		identities: maps.Clone(s.identities),
		byCred:     maps.Clone(s.byCred),
		nextID:     s.nextID,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tx panic: %v", r)
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}

	s.identities = t.identities
	s.byCred = t.byCred
	s.events = append(s.events, t.appended...)
	s.nextID = t.nextID
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetIdentity(_ context.Context, studentID string) (store.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.identities[studentID]
	if !ok {
		return store.IdentityRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListEvents(_ context.Context, studentID string, limit int) ([]store.AccessEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.AccessEventRecord, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].StudentID == studentID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// Events returns a copy of every committed event in append order.
// Test-only helper.
func (s *Store) Events() []store.AccessEventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.AccessEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
