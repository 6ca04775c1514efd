package service

import (
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func identityFromRecord(rec store.IdentityRecord) types.Identity {
	id := types.Identity{
		StudentID:    rec.StudentID,
		Name:         rec.Name,
		CredentialID: rec.CredentialID,
		CreatedAt:    rec.CreatedAt,
	}
	if !rec.BoundAt.IsZero() {
		t := rec.BoundAt
		id.BoundAt = &t
	}
	return id
}

func eventFromRecord(rec store.AccessEventRecord) types.AccessEvent {
	return types.AccessEvent{
		ID:           rec.ID,
		StudentID:    rec.StudentID,
		CredentialID: rec.CredentialID,
		Action:       types.Action(rec.Action),
		Timestamp:    rec.OccurredAt,
	}
}
