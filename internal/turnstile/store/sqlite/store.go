package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

// Do runs fn inside a write transaction owned by the worker.
func (s *Store) Do(ctx context.Context, fn store.TxFn) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &txn{q: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetIdentity(ctx context.Context, studentID string) (store.IdentityRecord, error) {
	return getIdentity(ctx, s.db, studentID)
}

func (s *Store) ListEvents(ctx context.Context, studentID string, limit int) ([]store.AccessEventRecord, error) {
	return listEvents(ctx, s.db, studentID, limit)
}

// txn is the store.Tx handed to a TxFn.
type txn struct {
	q querier
}

func (t *txn) GetIdentity(ctx context.Context, studentID string) (store.IdentityRecord, error) {
	return getIdentity(ctx, t.q, studentID)
}

func (t *txn) CreateIdentity(ctx context.Context, rec store.IdentityRecord) error {
	return createIdentity(ctx, t.q, rec)
}

func (t *txn) BindCredential(ctx context.Context, studentID, credentialID string, at time.Time) error {
	return bindCredential(ctx, t.q, studentID, credentialID, at)
}

func (t *txn) AppendEvent(ctx context.Context, rec store.AccessEventRecord) (store.AccessEventRecord, error) {
	return appendEvent(ctx, t.q, rec)
}

// constraintCode returns the extended SQLite result code for constraint
// violations, or 0.
func constraintCode(err error) int {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return 0
	}
	return se.Code()
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
