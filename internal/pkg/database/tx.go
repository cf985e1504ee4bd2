package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Transactor runs fn as a single unit of work. Every repository call made
// with the ctx handed to fn commits or rolls back together. Nested calls
// join the outer unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// Executor returns the transaction bound to ctx, or db when there is none.
func Executor(ctx context.Context, db *sqlx.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an open unit of work.
func InTx(ctx context.Context) bool {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return true
	}
	_, ok := ctx.Value(undoKey{}).(*undoLog)
	return ok
}

// SQLTransactor implements Transactor on top of a PostgreSQL pool.
type SQLTransactor struct {
	db *sqlx.DB
}

func NewSQLTransactor(db *sqlx.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// MemoryTransactor serializes units of work in-process and undoes the
// writes of a failed one by running the compensating actions registered
// through OnRollback, newest first.
type MemoryTransactor struct {
	mu sync.Mutex
}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

type undoKey struct{}

type undoLog struct {
	fns []func()
}

func (u *undoLog) rollback() {
	for i := len(u.fns) - 1; i >= 0; i-- {
		u.fns[i]()
	}
	u.fns = nil
}

func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	undo := &undoLog{}
	defer func() {
		if r := recover(); r != nil {
			undo.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, undoKey{}, undo)); err != nil {
		undo.rollback()
		return err
	}
	return nil
}

// OnRollback registers a compensating action for the in-memory unit of
// work bound to ctx. Outside a unit of work it does nothing.
func OnRollback(ctx context.Context, fn func()) {
	if u, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		u.fns = append(u.fns, fn)
	}
}
