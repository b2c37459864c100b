package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/orozarna/internal/model"
)

// InvalidEventError is returned when a record is rejected before it is written.
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid ledger record: %s %s", e.Field, e.Reason)
}

// LedgerWriter appends custody and maintenance records. It has no update or
// delete path; the schema rejects those for any other writer too.
type LedgerWriter struct {
	q Querier
}

// NewLedgerWriter returns a writer bound to q, normally the caller's transaction.
func NewLedgerWriter(q Querier) *LedgerWriter {
	return &LedgerWriter{q: q}
}

func (w *LedgerWriter) appendLedger(ctx context.Context, kitID int64, ev model.EventType, at time.Time) (int64, error) {
	result, err := w.q.ExecContext(ctx,
		`INSERT INTO ledger (kit_id, event_type, created_at) VALUES (?, ?, ?)`,
		kitID, ev, formatTime(at),
	)
	if err != nil {
		return 0, fmt.Errorf("appending ledger entry: %w", translateErr(err))
	}
	return result.LastInsertId()
}

func validateCustody(e *model.CustodyEvent) error {
	switch {
	case !e.EventType.IsCustody():
		return &InvalidEventError{"event_type", fmt.Sprintf("%q is not a custody event", e.EventType)}
	case e.KitID == 0:
		return &InvalidEventError{"kit_id", "is required"}
	case strings.TrimSpace(e.InitiatedByName) == "":
		return &InvalidEventError{"initiated_by_name", "is required"}
	case e.CreatedAt.IsZero():
		return &InvalidEventError{"created_at", "is required"}
	}

	switch e.EventType {
	case model.EventCheckoutOnPrem, model.EventCheckoutOffsite, model.EventTransfer:
		if strings.TrimSpace(e.CustodianName) == "" {
			return &InvalidEventError{"custodian_name", "is required for " + string(e.EventType)}
		}
	}

	if e.EventType == model.EventCheckoutOffsite {
		switch {
		case e.ApprovedByID == nil || e.ApprovedByName == "":
			return &InvalidEventError{"approved_by", "is required for off-site checkout"}
		case e.ApprovalRequestID == nil:
			return &InvalidEventError{"approval_request_id", "is required for off-site checkout"}
		case e.Attestation == nil || strings.TrimSpace(e.Attestation.Signature) == "":
			return &InvalidEventError{"attestation", "is required for off-site checkout"}
		}
	}
	return nil
}

// AppendCustody writes a custody record and fills in its ID and Seq.
func (w *LedgerWriter) AppendCustody(ctx context.Context, e *model.CustodyEvent) error {
	if err := validateCustody(e); err != nil {
		return err
	}

	seq, err := w.appendLedger(ctx, e.KitID, e.EventType, e.CreatedAt)
	if err != nil {
		return err
	}

	var attText, attVersion, attSignature, attOrigin, attSignedAt any
	if a := e.Attestation; a != nil {
		attText = a.Text
		attVersion = nullString(a.Version)
		attSignature = a.Signature
		attOrigin = a.OriginAddress
		attSignedAt = formatTime(a.SignedAt)
	}

	result, err := w.q.ExecContext(ctx,
		`INSERT INTO custody_events (seq, kit_id, event_type, initiated_by_id, initiated_by_name,
			custodian_id, custodian_name, approved_by_id, approved_by_name, approved_by_role,
			approval_request_id, location_type, notes, expected_return_date,
			attestation_text, attestation_version, attestation_signature, attestation_signed_at,
			attestation_origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, e.KitID, e.EventType, e.InitiatedByID, e.InitiatedByName,
		e.CustodianID, nullString(e.CustodianName), e.ApprovedByID, nullString(e.ApprovedByName),
		nullString(string(e.ApprovedByRole)), e.ApprovalRequestID, nullString(string(e.LocationType)),
		nullString(e.Notes), formatDate(e.ExpectedReturnDate),
		attText, attVersion, attSignature, attSignedAt, attOrigin, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending custody event: %w", translateErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting custody event id: %w", err)
	}
	e.ID = id
	e.Seq = seq
	return nil
}

func validateMaintenance(e *model.MaintenanceEvent) error {
	switch {
	case e.KitID == 0:
		return &InvalidEventError{"kit_id", "is required"}
	case strings.TrimSpace(e.OpenedByName) == "":
		return &InvalidEventError{"opened_by_name", "is required"}
	case e.CreatedAt.IsZero():
		return &InvalidEventError{"created_at", "is required"}
	case e.RoundCount != nil && *e.RoundCount < 0:
		return &InvalidEventError{"round_count", "must not be negative"}
	}
	if e.IsOpen {
		if e.SessionID != nil || e.ClosedByID != nil {
			return &InvalidEventError{"session_id", "must be empty on an open record"}
		}
		return nil
	}
	switch {
	case e.SessionID == nil:
		return &InvalidEventError{"session_id", "is required on a close record"}
	case e.ClosedByID == nil || strings.TrimSpace(e.ClosedByName) == "":
		return &InvalidEventError{"closed_by", "is required on a close record"}
	}
	return nil
}

// AppendMaintenance writes a maintenance record and fills in its ID and Seq.
func (w *LedgerWriter) AppendMaintenance(ctx context.Context, e *model.MaintenanceEvent) error {
	if err := validateMaintenance(e); err != nil {
		return err
	}

	seq, err := w.appendLedger(ctx, e.KitID, e.EventType(), e.CreatedAt)
	if err != nil {
		return err
	}

	result, err := w.q.ExecContext(ctx,
		`INSERT INTO maintenance_events (seq, kit_id, session_id, is_open, opened_by_id, opened_by_name,
			closed_by_id, closed_by_name, notes, parts_replaced, round_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, e.KitID, e.SessionID, e.IsOpen, e.OpenedByID, e.OpenedByName,
		e.ClosedByID, nullString(e.ClosedByName), nullString(e.Notes), nullString(e.PartsReplaced),
		e.RoundCount, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("appending maintenance event: %w", translateErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting maintenance event id: %w", err)
	}
	e.ID = id
	e.Seq = seq
	return nil
}

// History limits.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// HistoryFilter selects ledger entries. Zero values mean no constraint, and a
// Limit of zero returns every matching entry.
type HistoryFilter struct {
	KitID      int64
	ActorID    int64
	EventTypes []model.EventType
	Since      *time.Time
	Until      *time.Time
	Descending bool
	Limit      int
	Offset     int
}

// Normalize applies paging defaults for externally supplied filters.
func (f HistoryFilter) Normalize() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

const historySelect = `SELECT l.seq, l.kit_id, k.code, l.event_type, l.created_at,
	c.id, c.initiated_by_id, c.initiated_by_name, c.custodian_id, c.custodian_name,
	c.approved_by_id, c.approved_by_name, c.approved_by_role, c.approval_request_id,
	c.location_type, c.notes, c.expected_return_date,
	c.attestation_text, c.attestation_version, c.attestation_signature,
	c.attestation_signed_at, c.attestation_origin,
	m.id, m.session_id, m.is_open, m.opened_by_id, m.opened_by_name,
	m.closed_by_id, m.closed_by_name, m.notes, m.parts_replaced, m.round_count
FROM ledger l
JOIN kits k ON k.id = l.kit_id
LEFT JOIN custody_events c ON c.seq = l.seq
LEFT JOIN maintenance_events m ON m.seq = l.seq`

// History returns ledger entries in (created_at, seq) order.
func History(ctx context.Context, q Querier, f HistoryFilter) ([]model.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.KitID != 0 {
		where = append(where, `l.kit_id = ?`)
		args = append(args, f.KitID)
	}
	if f.ActorID != 0 {
		where = append(where, `(c.initiated_by_id = ? OR c.custodian_id = ? OR c.approved_by_id = ?
			OR m.opened_by_id = ? OR m.closed_by_id = ?)`)
		args = append(args, f.ActorID, f.ActorID, f.ActorID, f.ActorID, f.ActorID)
	}
	if len(f.EventTypes) > 0 {
		where = append(where, `l.event_type IN (?`+strings.Repeat(`, ?`, len(f.EventTypes)-1)+`)`)
		for _, t := range f.EventTypes {
			args = append(args, t)
		}
	}
	if f.Since != nil {
		where = append(where, `l.created_at >= ?`)
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		where = append(where, `l.created_at < ?`)
		args = append(args, formatTime(*f.Until))
	}

	query := historySelect
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	if f.Descending {
		query += "\nORDER BY l.created_at DESC, l.seq DESC"
	} else {
		query += "\nORDER BY l.created_at, l.seq"
	}
	if f.Limit > 0 {
		query += "\nLIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(rows *sql.Rows) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var cID, cInitiatedBy, cCustodianID, cApprovedByID, cRequestID sql.NullInt64
	var cInitiatedName, cCustodianName, cApprovedName, cApprovedRole, cLocation, cNotes sql.NullString
	var cERD, cSignedAt *time.Time
	var aText, aVersion, aSignature, aOrigin sql.NullString
	var mID, mSession, mOpenedBy, mClosedBy, mRounds sql.NullInt64
	var mIsOpen sql.NullBool
	var mOpenedName, mClosedName, mNotes, mParts sql.NullString

	err := rows.Scan(&e.Seq, &e.KitID, &e.KitCode, &e.EventType, &e.CreatedAt,
		&cID, &cInitiatedBy, &cInitiatedName, &cCustodianID, &cCustodianName,
		&cApprovedByID, &cApprovedName, &cApprovedRole, &cRequestID,
		&cLocation, &cNotes, &cERD,
		&aText, &aVersion, &aSignature, &cSignedAt, &aOrigin,
		&mID, &mSession, &mIsOpen, &mOpenedBy, &mOpenedName,
		&mClosedBy, &mClosedName, &mNotes, &mParts, &mRounds)
	if err != nil {
		return nil, err
	}

	switch {
	case cID.Valid:
		c := &model.CustodyEvent{
			ID:                 cID.Int64,
			Seq:                e.Seq,
			KitID:              e.KitID,
			EventType:          e.EventType,
			InitiatedByID:      cInitiatedBy.Int64,
			InitiatedByName:    cInitiatedName.String,
			CustodianID:        int64Ptr(cCustodianID),
			CustodianName:      cCustodianName.String,
			ApprovedByID:       int64Ptr(cApprovedByID),
			ApprovedByName:     cApprovedName.String,
			ApprovedByRole:     model.Role(cApprovedRole.String),
			ApprovalRequestID:  int64Ptr(cRequestID),
			LocationType:       model.LocationType(cLocation.String),
			Notes:              cNotes.String,
			ExpectedReturnDate: cERD,
			CreatedAt:          e.CreatedAt,
		}
		if aSignature.Valid {
			c.Attestation = &model.Attestation{
				Text:          aText.String,
				Version:       aVersion.String,
				Signature:     aSignature.String,
				OriginAddress: aOrigin.String,
			}
			if cSignedAt != nil {
				c.Attestation.SignedAt = *cSignedAt
			}
		}
		e.Custody = c
	case mID.Valid:
		m := &model.MaintenanceEvent{
			ID:            mID.Int64,
			Seq:           e.Seq,
			KitID:         e.KitID,
			SessionID:     int64Ptr(mSession),
			IsOpen:        mIsOpen.Bool,
			OpenedByID:    mOpenedBy.Int64,
			OpenedByName:  mOpenedName.String,
			ClosedByID:    int64Ptr(mClosedBy),
			ClosedByName:  mClosedName.String,
			Notes:         mNotes.String,
			PartsReplaced: mParts.String,
			CreatedAt:     e.CreatedAt,
		}
		if mRounds.Valid {
			n := int(mRounds.Int64)
			m.RoundCount = &n
		}
		e.Maintenance = m
	default:
		return nil, fmt.Errorf("ledger seq %d has no record", e.Seq)
	}
	return &e, nil
}

const maintenanceColumns = `id, seq, kit_id, session_id, is_open, opened_by_id, opened_by_name,
	closed_by_id, closed_by_name, notes, parts_replaced, round_count, created_at`

// OpenMaintenanceSession returns the kit's open maintenance record that has no
// close record yet, or nil.
func OpenMaintenanceSession(ctx context.Context, q Querier, kitID int64) (*model.MaintenanceEvent, error) {
	var (
		m                         model.MaintenanceEvent
		session, closedBy, rounds sql.NullInt64
		closedName, notes, parts  sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT `+maintenanceColumns+` FROM maintenance_events o
		 WHERE kit_id = ? AND is_open = 1
		   AND NOT EXISTS (SELECT 1 FROM maintenance_events c WHERE c.session_id = o.id)
		 ORDER BY seq DESC LIMIT 1`, kitID,
	).Scan(&m.ID, &m.Seq, &m.KitID, &session, &m.IsOpen, &m.OpenedByID, &m.OpenedByName,
		&closedBy, &closedName, &notes, &parts, &rounds, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting open maintenance session: %w", err)
	}
	m.SessionID = int64Ptr(session)
	m.ClosedByID = int64Ptr(closedBy)
	m.ClosedByName = closedName.String
	m.Notes = notes.String
	m.PartsReplaced = parts.String
	if rounds.Valid {
		n := int(rounds.Int64)
		m.RoundCount = &n
	}
	return &m, nil
}
