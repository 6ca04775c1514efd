package memory

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

func (t *txn) AppendEvent(_ context.Context, rec store.AccessEventRecord) (store.AccessEventRecord, error) {
	if _, ok := t.identities[rec.StudentID]; !ok {
		return store.AccessEventRecord{}, store.ErrNotFound
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	rec.ID = t.nextID
	t.nextID++
	t.appended = append(t.appended, rec)
	return rec, nil
}
