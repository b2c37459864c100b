package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/orozarna/internal/model"
)

const kitColumns = `id, code, name, description, serial_sealed, status,
	custodian_id, custodian_name, location_type, expected_return_date,
	custody_started_at, last_maintenance_at, created_at, updated_at`

func scanKit(row interface{ Scan(...any) error }) (*model.Kit, error) {
	k := &model.Kit{}
	var (
		description, custodianName, locationType sql.NullString
		custodianID                              sql.NullInt64
	)
	err := row.Scan(&k.ID, &k.Code, &k.Name, &description, &k.SerialSealed, &k.Status,
		&custodianID, &custodianName, &locationType, &k.ExpectedReturnDate,
		&k.CustodyStartedAt, &k.LastMaintenanceAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	k.Description = description.String
	k.CustodianID = int64Ptr(custodianID)
	k.CustodianName = custodianName.String
	k.LocationType = model.LocationType(locationType.String)
	return k, nil
}

// CreateKit registers a kit in status available.
func CreateKit(ctx context.Context, q Querier, code, name, description string, serialSealed []byte, now time.Time) (*model.Kit, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO kits (code, name, description, serial_sealed, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'available', ?, ?)`,
		code, name, nullString(description), serialSealed, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kit: %w", translateErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting kit id: %w", err)
	}

	return GetKit(ctx, q, id)
}

// GetKit returns a kit by ID.
func GetKit(ctx context.Context, q Querier, id int64) (*model.Kit, error) {
	k, err := scanKit(q.QueryRowContext(ctx,
		`SELECT `+kitColumns+` FROM kits WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting kit: %w", err)
	}
	return k, nil
}

// GetKitByCode returns a kit by its code.
func GetKitByCode(ctx context.Context, q Querier, code string) (*model.Kit, error) {
	k, err := scanKit(q.QueryRowContext(ctx,
		`SELECT `+kitColumns+` FROM kits WHERE code = ?`, code,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting kit by code: %w", err)
	}
	return k, nil
}

// ListKits returns all kits, optionally filtered by status.
func ListKits(ctx context.Context, q Querier, status model.KitStatus) ([]model.Kit, error) {
	query := `SELECT ` + kitColumns + ` FROM kits`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY code`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing kits: %w", err)
	}
	defer rows.Close()

	var kits []model.Kit
	for rows.Next() {
		k, err := scanKit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning kit: %w", err)
		}
		kits = append(kits, *k)
	}
	return kits, rows.Err()
}

// SetKitState writes the derived state of a kit. The write only applies if the
// kit is still in status from; otherwise ErrStateChanged is returned.
func SetKitState(ctx context.Context, q Querier, id int64, from model.KitStatus, state model.KitState, now time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE kits SET status = ?, custodian_id = ?, custodian_name = ?, location_type = ?,
			expected_return_date = ?, custody_started_at = ?, last_maintenance_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		state.Status, state.CustodianID, nullString(state.CustodianName), nullString(string(state.LocationType)),
		formatDate(state.ExpectedReturnDate), formatTimePtr(state.CustodyStartedAt),
		formatTimePtr(state.LastMaintenanceAt), formatTime(now),
		id, from,
	)
	if err != nil {
		return fmt.Errorf("updating kit state: %w", translateErr(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking kit update: %w", err)
	}
	if n == 0 {
		return ErrStateChanged
	}
	return nil
}
