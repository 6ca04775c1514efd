package notify

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

type Publisher interface {
	PublishAccessEvent(ctx context.Context, ev types.AccessEvent) error
}

// Multi delivers to every publisher and joins their errors. One failing sink
// does not stop delivery to the rest.
type Multi []Publisher

func (m Multi) PublishAccessEvent(ctx context.Context, ev types.AccessEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishAccessEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
