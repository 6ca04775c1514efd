package sqlite

import (
	"context"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

func appendEvent(ctx context.Context, q querier, rec store.AccessEventRecord) (store.AccessEventRecord, error) {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	rec.OccurredAt = rec.OccurredAt.UTC()

	res, err := q.ExecContext(ctx, `
INSERT INTO access_events(student_id, credential_id, action, occurred_at_ms)
VALUES (?, ?, ?, ?);
`, rec.StudentID, rec.CredentialID, rec.Action, rec.OccurredAt.UnixMilli())
	if err != nil {
		if constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return store.AccessEventRecord{}, wrap("AppendEvent", store.ErrNotFound)
		}
		return store.AccessEventRecord{}, wrap("AppendEvent insert", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return store.AccessEventRecord{}, wrap("AppendEvent id", err)
	}
	rec.ID = id
	// Stored precision is milliseconds; hand back what a read would return.
	rec.OccurredAt = time.UnixMilli(rec.OccurredAt.UnixMilli()).UTC()
	return rec, nil
}

func listEvents(ctx context.Context, q querier, studentID string, limit int) ([]store.AccessEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := q.QueryContext(ctx, `
SELECT event_id, student_id, credential_id, action, occurred_at_ms
FROM access_events
WHERE student_id = ?
ORDER BY event_id DESC
LIMIT ?;
`, studentID, limit)
	if err != nil {
		return nil, wrap("ListEvents query", err)
	}
	defer rows.Close()

	out := make([]store.AccessEventRecord, 0, limit)
	for rows.Next() {
		var (
			rec store.AccessEventRecord
			ms  int64
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.CredentialID, &rec.Action, &ms); err != nil {
			return nil, wrap("ListEvents scan", err)
		}
		rec.OccurredAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListEvents rows", err)
	}
	return out, nil
}
