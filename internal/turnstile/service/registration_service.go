package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

type RegistrationService struct {
	store store.Store
	now   func() time.Time
}

func NewRegistrationService(st store.Store) *RegistrationService {
	return &RegistrationService{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates an unbound identity. A student_id that already exists
// yields ErrAlreadyRegistered; a store-level collision on insert (a raced
// duplicate) yields ErrRegistrationFailed. Neither changes any state.
func (s *RegistrationService) Register(ctx context.Context, req types.RegisterRequest) (types.Identity, error) {
	ctx, span := tracer.Start(ctx, "RegistrationService.Register")
	defer span.End()

	studentID, ok := field(req.StudentID, MaxStudentIDLen)
	if !ok {
		return types.Identity{}, ErrInvalidStudentID
	}
	name, ok := field(req.Name, MaxNameLen)
	if !ok {
		return types.Identity{}, ErrInvalidName
	}
	span.SetAttributes(attribute.String("student_id", studentID))

	rec := store.IdentityRecord{
		StudentID: studentID,
		Name:      name,
		CreatedAt: time.UnixMilli(s.now().UnixMilli()).UTC(),
	}

	err := s.store.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetIdentity(ctx, studentID)
		switch {
		case err == nil:
			return ErrAlreadyRegistered
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if err := tx.CreateIdentity(ctx, rec); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyRegistered) {
			span.SetStatus(codes.Error, err.Error())
		}
		return types.Identity{}, err
	}

	return identityFromRecord(rec), nil
}
