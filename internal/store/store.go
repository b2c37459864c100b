package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so every function here can
// run on its own or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	// ErrLedgerImmutable is returned when the database refuses to change or
	// remove a written ledger record. Reaching it is a bug.
	ErrLedgerImmutable = errors.New("ledger records are immutable")
	// ErrResolved is returned when a resolved approval request is written to.
	ErrResolved = errors.New("approval request is already resolved")
	// ErrNotPending is returned when a resolution finds the request no longer pending.
	ErrNotPending = errors.New("approval request is not pending")
	// ErrDuplicatePending is returned when a kit already has a pending request.
	ErrDuplicatePending = errors.New("kit already has a pending approval request")
	// ErrDuplicateCode is returned when a kit code is already registered.
	ErrDuplicateCode = errors.New("kit code already registered")
	// ErrStateChanged is returned when a kit is no longer in the status a write expected.
	ErrStateChanged = errors.New("kit state changed concurrently")
)

// Times are stored as fixed-width UTC text so that lexical order is time order.
const (
	timeLayout = "2006-01-02 15:04:05.000000"
	dateLayout = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// translateErr maps constraint and trigger failures to package errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "append-only"):
		return errors.Join(ErrLedgerImmutable, err)
	case strings.Contains(msg, "approval request is resolved"):
		return errors.Join(ErrResolved, err)
	case strings.Contains(msg, "approval requests cannot be deleted"):
		return errors.Join(ErrResolved, err)
	}

	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		switch {
		case strings.Contains(msg, "kits.code"):
			return errors.Join(ErrDuplicateCode, err)
		case strings.Contains(msg, "approval_requests.kit_id"):
			return errors.Join(ErrDuplicatePending, err)
		}
	}
	return err
}
