package store

import (
	"context"
	"time"
)

// AccessEventRecord is one row of the append-only access log. ID is assigned
// by the store on append and increases in creation order.
type AccessEventRecord struct {
	ID           int64
	StudentID    string
	CredentialID string
	Action       string
	OccurredAt   time.Time
}

type AccessEventReader interface {
	// ListEvents returns up to limit events for studentID, newest first.
	ListEvents(ctx context.Context, studentID string, limit int) ([]AccessEventRecord, error)
}

type AccessEventTx interface {
	AppendEvent(ctx context.Context, rec AccessEventRecord) (AccessEventRecord, error)
}
