// Package storage executes queries and mutations against the backing
// database. It compiles parsed query parameters into parameterized SQL,
// scans rows into generic records, and translates driver constraint
// violations into the API error taxonomy.
package storage

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/restlessgo/restless/schema"
)

// Record is one database row keyed by column name. Values carry the
// driver's native types; the serializer normalizes them for the wire.
type Record = map[string]any

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository runs queries for the registered schemas over a single
// database handle. A Repository is safe for concurrent use; the ones
// produced by Transact are bound to a transaction and are not.
type Repository struct {
	run      querier
	db       *sql.DB
	registry *schema.Registry
	logger   *zap.Logger
}

// NewRepository binds a repository to a database handle and a schema
// registry.
func NewRepository(db *sql.DB, registry *schema.Registry, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{run: db, db: db, registry: registry, logger: logger}
}

// Registry returns the schema registry the repository was built with.
func (r *Repository) Registry() *schema.Registry {
	return r.registry
}

// Transact runs fn against a transaction-bound copy of the repository.
// The transaction commits when fn returns nil and rolls back otherwise,
// so a constraint violation partway through a multi-statement write
// leaves the database untouched.
func (r *Repository) Transact(ctx context.Context, fn func(*Repository) error) error {
	if r.db == nil {
		// Already inside a transaction; nested writes join it.
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}

	bound := &Repository{run: tx, registry: r.registry, logger: r.logger}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, sqlText string, args []any) (*sql.Rows, error) {
	r.logger.Debug("executing query", zap.String("sql", sqlText), zap.Int("args", len(args)))
	rows, err := r.run.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (r *Repository) exec(ctx context.Context, sqlText string, args []any) (sql.Result, error) {
	r.logger.Debug("executing statement", zap.String("sql", sqlText), zap.Int("args", len(args)))
	result, err := r.run.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}
