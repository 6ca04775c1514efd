package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

type LookupService struct {
	store store.Store
}

func NewLookupService(st store.Store) *LookupService {
	return &LookupService{store: st}
}

func (s *LookupService) Identity(ctx context.Context, studentID string) (types.Identity, error) {
	ctx, span := tracer.Start(ctx, "LookupService.Identity")
	defer span.End()

	studentID, err := identityKey(studentID)
	if err != nil {
		return types.Identity{}, err
	}
	span.SetAttributes(attribute.String("student_id", studentID))

	rec, err := s.store.GetIdentity(ctx, studentID)
	if errors.Is(err, store.ErrNotFound) {
		return types.Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return types.Identity{}, err
	}
	return identityFromRecord(rec), nil
}

// Events lists an identity's access events, newest first. limit <= 0 means
// DefaultEventLimit; larger than MaxEventLimit is capped.
func (s *LookupService) Events(ctx context.Context, studentID string, limit int) ([]types.AccessEvent, error) {
	ident, err := s.Identity(ctx, studentID)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultEventLimit
	case limit > MaxEventLimit:
		limit = MaxEventLimit
	}

	recs, err := s.store.ListEvents(ctx, ident.StudentID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.AccessEvent, 0, len(recs))
	for _, r := range recs {
		out = append(out, eventFromRecord(r))
	}
	return out, nil
}
