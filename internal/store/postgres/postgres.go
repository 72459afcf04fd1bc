// Package postgres is the reference Store adapter: a concrete,
// sqlx/lib/pq-backed implementation of every store contract spec.md §6.1
// leaves abstract (UserStore, rbacrole.Store, accesstoken.SessionStore,
// identity.PasswordResetStore, identity.PasskeyCredentialStore,
// apikey.Store). It is adapted from the teacher's
// shared/repository.BaseRepository: the same NamedExecContext /
// GetContext / SelectContext plumbing and sql.ErrNoRows mapping, split one
// type per domain (rather than one generic repository over app DTOs)
// because the domain contracts all name their lookup/save/delete methods
// identically — Go's flat per-type method sets won't let one struct
// implement more than one of them at once.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/zeromicro/go-zero/core/logx"
)

// base holds the shared connection and helpers every domain store embeds.
type base struct {
	db *sqlx.DB
}

// Conn dials nothing itself — it wraps an already-connected db (see
// third_party/database.NewPostgresConnection) and hands out one store per
// domain, all sharing the same underlying connection pool.
type Conn struct {
	base
}

// NewConn wraps an already-connected db.
func NewConn(db *sqlx.DB) *Conn {
	return &Conn{base{db: db}}
}

// DB exposes the underlying handle for migrations or ad hoc diagnostics.
func (c *Conn) DB() *sqlx.DB {
	return c.db
}

// Close releases the underlying connection pool.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Users returns the identity.UserStore implementation over this connection.
func (c *Conn) Users() *Users { return &Users{base: c.base} }

// Roles returns the rbacrole.Store implementation over this connection.
func (c *Conn) Roles() *Roles { return &Roles{base: c.base} }

// Sessions returns the accesstoken.SessionStore implementation over this
// connection.
func (c *Conn) Sessions() *Sessions { return &Sessions{base: c.base} }

// PasswordResets returns the identity.PasswordResetStore implementation
// over this connection.
func (c *Conn) PasswordResets() *PasswordResets { return &PasswordResets{base: c.base} }

// Passkeys returns the identity.PasskeyCredentialStore implementation over
// this connection.
func (c *Conn) Passkeys() *Passkeys { return &Passkeys{base: c.base} }

// APIKeys returns the apikey.Store implementation over this connection.
func (c *Conn) APIKeys() *APIKeys { return &APIKeys{base: c.base} }

// mapNoRows turns sql.ErrNoRows into notFound, leaving every other error
// (including nil) untouched, mirroring BaseRepository.GetByID's
// sql.ErrNoRows branch.
func mapNoRows(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// withTx runs fn inside a transaction, rolling back on panic or error and
// committing otherwise, exactly as BaseRepository.Transaction does.
func (b *base) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	err = fn(tx)
	return err
}

func logErr(ctx context.Context, op string, err error) {
	if err != nil {
		logx.WithContext(ctx).Errorf("postgres: %s: %v", op, err)
	}
}
