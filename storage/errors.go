package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/restlessgo/restless"
)

// translate maps driver-level failures into the API error taxonomy.
// Integrity violations (unique, foreign key, not-null) become conflict
// errors so the handler can report 409 and roll back; everything else
// surfaces as an internal failure.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var domain *restless.Error
	if errors.As(err, &domain) {
		return domain
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isIntegrityClass(pgErr.Code) {
			return restless.NewConflict(pgErr.Message)
		}
		return restless.NewInternal(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if isIntegrityClass(string(pqErr.Code)) {
			return restless.NewConflict(pqErr.Message)
		}
		return restless.NewInternal(err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return restless.NewConflict(sqliteErr.Error())
		}
		return restless.NewInternal(err)
	}

	return restless.NewInternal(err)
}

// isIntegrityClass reports whether a SQLSTATE code belongs to class 23,
// integrity constraint violations.
func isIntegrityClass(code string) bool {
	return len(code) >= 2 && code[:2] == "23"
}
