package store

import (
	"context"
	"time"
)

type IdentityRecord struct {
	StudentID    string
	Name         string
	CredentialID string // "" = unbound
	BoundAt      time.Time
	CreatedAt    time.Time
}

type IdentityReader interface {
	GetIdentity(ctx context.Context, studentID string) (IdentityRecord, error)
}

type IdentityTx interface {
	IdentityReader

	// CreateIdentity inserts an unbound identity. ErrDuplicate if the
	// student_id exists.
	CreateIdentity(ctx context.Context, rec IdentityRecord) error

	// BindCredential sets the credential of an unbound identity.
	// ErrNotFound, ErrAlreadyBound or ErrCredentialInUse otherwise.
	BindCredential(ctx context.Context, studentID, credentialID string, at time.Time) error
}
