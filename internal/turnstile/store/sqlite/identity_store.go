package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

func getIdentity(ctx context.Context, q querier, studentID string) (store.IdentityRecord, error) {
	var (
		rec       store.IdentityRecord
		cred      sql.NullString
		boundMs   sql.NullInt64
		createdMs int64
	)
	err := q.QueryRowContext(ctx, `
SELECT student_id, name, credential_id, bound_at_ms, created_at_ms
FROM identities
WHERE student_id = ?;
`, studentID).Scan(&rec.StudentID, &rec.Name, &cred, &boundMs, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return store.IdentityRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.IdentityRecord{}, wrap("GetIdentity", err)
	}

	rec.CredentialID = cred.String
	if boundMs.Valid {
		rec.BoundAt = time.UnixMilli(boundMs.Int64).UTC()
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func createIdentity(ctx context.Context, q querier, rec store.IdentityRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO identities(student_id, name, created_at_ms)
VALUES (?, ?, ?);
`, rec.StudentID, rec.Name, rec.CreatedAt.UTC().UnixMilli())
	if err != nil {
		switch constraintCode(err) {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return wrap("CreateIdentity", store.ErrDuplicate)
		}
		return wrap("CreateIdentity", err)
	}
	return nil
}

// bindCredential only touches rows whose credential is still NULL, so a
// lost race shows up as zero rows affected rather than an overwrite.
func bindCredential(ctx context.Context, q querier, studentID, credentialID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := q.ExecContext(ctx, `
UPDATE identities
SET credential_id = ?,
    bound_at_ms   = ?
WHERE student_id = ? AND credential_id IS NULL;
`, credentialID, at.UTC().UnixMilli(), studentID)
	if err != nil {
		switch constraintCode(err) {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return wrap("BindCredential", store.ErrCredentialInUse)
		case sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			return wrap("BindCredential", store.ErrAlreadyBound)
		}
		return wrap("BindCredential", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrap("BindCredential rows", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either no such identity or it is already bound.
	if _, err := getIdentity(ctx, q, studentID); err != nil {
		return err
	}
	return wrap("BindCredential", store.ErrAlreadyBound)
}
