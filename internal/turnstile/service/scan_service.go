package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// EventPublisher receives every committed access event.
type EventPublisher interface {
	PublishAccessEvent(ctx context.Context, ev types.AccessEvent) error
}

type ScanService struct {
	store     store.Store
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewScanService wires the scan procedure. pub may be nil.
func NewScanService(st store.Store, pub EventPublisher, logger zerolog.Logger) *ScanService {
	return &ScanService{
		store:     st,
		publisher: pub,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Scan validates a credential presented for studentID and appends one
// access event. The first accepted scan of an unbound identity binds the
// credential; binding and event commit in the same transaction.
func (s *ScanService) Scan(ctx context.Context, req types.ScanRequest) (types.ScanResult, error) {
	ctx, span := tracer.Start(ctx, "ScanService.Scan")
	defer span.End()

	studentID, err := identityKey(req.StudentID)
	if err != nil {
		return types.ScanResult{}, err
	}
	credentialID, ok := field(req.CredentialID, MaxCredentialIDLen)
	if !ok {
		return types.ScanResult{}, ErrInvalidCredentialID
	}
	action, err := types.ParseAction(req.Action)
	if err != nil {
		return types.ScanResult{}, ErrInvalidAction
	}
	span.SetAttributes(
		attribute.String("student_id", studentID),
		attribute.String("action", action.String()),
	)

	now := s.now()
	var (
		ev    store.AccessEventRecord
		bound bool
	)

	err = s.store.Do(ctx, func(ctx context.Context, tx store.Tx) error {
		bound = false

		ident, err := tx.GetIdentity(ctx, studentID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		if err != nil {
			return err
		}

		switch {
		case ident.CredentialID == "":
			if err := tx.BindCredential(ctx, studentID, credentialID, now); err != nil {
				switch {
				case errors.Is(err, store.ErrCredentialInUse):
					return ErrCredentialInUse
				case errors.Is(err, store.ErrAlreadyBound):
					// Lost a race with another binder; the stored value is
					// authoritative and did not come from this call.
					return ErrCredentialMismatch
				}
				return err
			}
			bound = true
		case ident.CredentialID != credentialID:
			return ErrCredentialMismatch
		}

		ev, err = tx.AppendEvent(ctx, store.AccessEventRecord{
			StudentID:    studentID,
			CredentialID: credentialID,
			Action:       action.String(),
			OccurredAt:   now,
		})
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.ScanResult{}, err
	}

	span.SetAttributes(attribute.Bool("bound", bound), attribute.Int64("event_id", ev.ID))
	out := eventFromRecord(ev)
	s.publish(ctx, out)

	return types.ScanResult{Event: out, Bound: bound}, nil
}

// publish hands a committed event to the fan-out. A failed delivery is
// logged and never undoes or fails the scan.
func (s *ScanService) publish(ctx context.Context, ev types.AccessEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAccessEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Int64("event_id", ev.ID).
			Str("student_id", ev.StudentID).
			Msg("publish access event")
	}
}
