package memory

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

// txn holds the staged state of one unit of work.
type txn struct {
	identities map[string]store.IdentityRecord
	byCred     map[string]string
	appended   []store.AccessEventRecord
	nextID     int64
}

func (t *txn) GetIdentity(_ context.Context, studentID string) (store.IdentityRecord, error) {
	rec, ok := t.identities[studentID]
	if !ok {
		return store.IdentityRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (t *txn) CreateIdentity(_ context.Context, rec store.IdentityRecord) error {
	if _, exists := t.identities[rec.StudentID]; exists {
		return store.ErrDuplicate
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.CredentialID = ""
	rec.BoundAt = time.Time{}
	t.identities[rec.StudentID] = rec
	return nil
}

func (t *txn) BindCredential(_ context.Context, studentID, credentialID string, at time.Time) error {
	rec, ok := t.identities[studentID]
	if !ok {
		return store.ErrNotFound
	}
	if rec.CredentialID != "" {
		return store.ErrAlreadyBound
	}
	if owner, taken := t.byCred[credentialID]; taken && owner != studentID {
		return store.ErrCredentialInUse
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	rec.CredentialID = credentialID
	rec.BoundAt = at.UTC()
	t.identities[studentID] = rec
	t.byCred[credentialID] = studentID
	return nil
}
