package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes the API distinguishes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgTooManyConnections  = "53300"
)

// ClassifyDB maps ORM and driver errors. It reports false for errors that
// did not originate in the persistence layer.
func ClassifyDB(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeNotFound, err, "record not found"), true
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(CodeConflict, err, "a record with the same unique value already exists"), true
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Wrap(CodeValidation, err, "referenced record does not exist"), true
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return Wrap(CodeValidation, err, "value violates a constraint"), true
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeServiceUnavailable, err, "database unavailable"), true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return Wrap(CodeConflict, err, "a record with the same unique value already exists").
				WithDetails(map[string]string{"constraint": pgErr.ConstraintName}), true
		case pgErr.Code == pgForeignKeyViolation:
			return Wrap(CodeValidation, err, "referenced record does not exist").
				WithDetails(map[string]string{"constraint": pgErr.ConstraintName}), true
		case pgErr.Code == pgNotNullViolation:
			return Wrap(CodeValidation, err, "required field is missing").
				WithDetails(map[string]string{"column": pgErr.ColumnName}), true
		case pgErr.Code == pgCheckViolation:
			return Wrap(CodeValidation, err, "value violates a constraint"), true
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P0"), pgErr.Code == pgTooManyConnections:
			return Wrap(CodeServiceUnavailable, err, "database unavailable"), true
		}
		return Wrap(CodeInternal, err, "database error"), true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Wrap(CodeServiceUnavailable, err, "database unavailable"), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(CodeServiceUnavailable, err, "database unavailable"), true
	}

	// sqlite reports constraint failures as plain messages
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return Wrap(CodeConflict, err, "a record with the same unique value already exists"), true
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return Wrap(CodeValidation, err, "referenced record does not exist"), true
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return Wrap(CodeValidation, err, "required field is missing"), true
	}
	return nil, false
}
