package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is a primary-key collision on insert.
	ErrDuplicate = errors.New("duplicate key")

	// ErrCredentialInUse means another identity already holds the credential.
	ErrCredentialInUse = errors.New("credential bound to another identity")

	// ErrAlreadyBound means the identity's credential was set by someone else
	// between read and write.
	ErrAlreadyBound = errors.New("identity already bound")
)

// Tx is the set of operations available inside one unit of work.
type Tx interface {
	IdentityTx
	AccessEventTx
}

// TxFn runs inside a transaction. Returning nil commits; any error, including
// a panic, rolls back every change made through tx.
type TxFn func(ctx context.Context, tx Tx) error

// Store is the handle passed to services. Writes go through Do; the read
// methods see committed state only.
type Store interface {
	Do(ctx context.Context, fn TxFn) error
	IdentityReader
	AccessEventReader
	Ping(ctx context.Context) error
}
