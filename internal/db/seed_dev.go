package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedIdentity struct {
	StudentID string
	Name      string
}

type SeedDevOptions struct {
	Identities []SeedIdentity
}

// SeedDev pre-registers unbound identities for local testing. Existing rows
// are left untouched so a re-run never clears a binding.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) (int, error) {
	now := time.Now().UTC().UnixMilli()

	inserted := 0
	for _, id := range opt.Identities {
		sid := strings.TrimSpace(id.StudentID)
		name := strings.TrimSpace(id.Name)
		if sid == "" || name == "" {
			continue
		}

		res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO identities(student_id, name, created_at_ms)
VALUES (?, ?, ?);`, sid, name, now)
		if err != nil {
			return inserted, fmt.Errorf("seed identity %s: %w", sid, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}
