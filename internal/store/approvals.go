package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/orozarna/internal/model"
)

const approvalColumns = `a.id, a.kit_id, a.requester_id, a.requester_name, a.custodian_name, a.status,
	a.approver_id, a.approver_name, a.approver_role, a.notes, a.denial_reason, a.expected_return_date,
	a.attestation_text, a.attestation_version, a.attestation_signature, a.attestation_signed_at,
	a.attestation_origin, a.custody_event_id, a.created_at, a.resolved_at, k.code, k.name`

const approvalFrom = ` FROM approval_requests a JOIN kits k ON k.id = a.kit_id`

func scanApproval(row interface{ Scan(...any) error }) (*model.ApprovalRequest, error) {
	r := &model.ApprovalRequest{}
	var approverID, eventID sql.NullInt64
	var approverName, approverRole, notes, denial, version sql.NullString
	err := row.Scan(&r.ID, &r.KitID, &r.RequesterID, &r.RequesterName, &r.CustodianName, &r.Status,
		&approverID, &approverName, &approverRole, &notes, &denial, &r.ExpectedReturnDate,
		&r.Attestation.Text, &version, &r.Attestation.Signature, &r.Attestation.SignedAt,
		&r.Attestation.OriginAddress, &eventID, &r.CreatedAt, &r.ResolvedAt, &r.KitCode, &r.KitName)
	if err != nil {
		return nil, err
	}
	r.ApproverID = int64Ptr(approverID)
	r.ApproverName = approverName.String
	r.ApproverRole = model.Role(approverRole.String)
	r.Notes = notes.String
	r.DenialReason = denial.String
	r.Attestation.Version = version.String
	r.CustodyEventID = int64Ptr(eventID)
	return r, nil
}

// CreateApprovalRequest stores a new pending request and fills in its ID.
// A kit may have at most one pending request; a second returns ErrDuplicatePending.
func CreateApprovalRequest(ctx context.Context, q Querier, r *model.ApprovalRequest) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO approval_requests (kit_id, requester_id, requester_name, custodian_name, status,
			notes, expected_return_date, attestation_text, attestation_version, attestation_signature,
			attestation_signed_at, attestation_origin, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.KitID, r.RequesterID, r.RequesterName, r.CustodianName,
		nullString(r.Notes), formatDate(r.ExpectedReturnDate),
		r.Attestation.Text, nullString(r.Attestation.Version), r.Attestation.Signature,
		formatTime(r.Attestation.SignedAt), r.Attestation.OriginAddress, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating approval request: %w", translateErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting approval request id: %w", err)
	}
	r.ID = id
	r.Status = model.ApprovalPending
	return nil
}

// GetApprovalRequest returns a request by ID.
func GetApprovalRequest(ctx context.Context, q Querier, id int64) (*model.ApprovalRequest, error) {
	r, err := scanApproval(q.QueryRowContext(ctx,
		`SELECT `+approvalColumns+approvalFrom+` WHERE a.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting approval request: %w", err)
	}
	return r, nil
}

// PendingRequestForKit returns the kit's pending request, or nil.
func PendingRequestForKit(ctx context.Context, q Querier, kitID int64) (*model.ApprovalRequest, error) {
	r, err := scanApproval(q.QueryRowContext(ctx,
		`SELECT `+approvalColumns+approvalFrom+` WHERE a.kit_id = ? AND a.status = 'pending'`, kitID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pending approval request: %w", err)
	}
	return r, nil
}

// ApprovalFilter selects approval requests. Zero values mean no constraint.
type ApprovalFilter struct {
	Status      model.ApprovalStatus
	KitID       int64
	RequesterID int64
	Limit       int
	Offset      int
}

// ListApprovalRequests returns requests oldest first.
func ListApprovalRequests(ctx context.Context, q Querier, f ApprovalFilter) ([]model.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + approvalFrom + ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND a.status = ?`
		args = append(args, f.Status)
	}
	if f.KitID != 0 {
		query += ` AND a.kit_id = ?`
		args = append(args, f.KitID)
	}
	if f.RequesterID != 0 {
		query += ` AND a.requester_id = ?`
		args = append(args, f.RequesterID)
	}
	query += ` ORDER BY a.created_at, a.id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing approval requests: %w", err)
	}
	defer rows.Close()

	requests := []model.ApprovalRequest{}
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning approval request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// ApproveRequest resolves a pending request as approved and links the custody
// record it produced. ErrNotPending is returned if it was already resolved.
func ApproveRequest(ctx context.Context, q Querier, id int64, approver model.Actor, custodyEventID int64, now time.Time) error {
	return resolveRequest(ctx, q,
		`UPDATE approval_requests SET status = 'approved', approver_id = ?, approver_name = ?,
			approver_role = ?, custody_event_id = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		approver.ID, approver.Name, approver.Role, custodyEventID, formatTime(now), id,
	)
}

// DenyRequest resolves a pending request as denied.
func DenyRequest(ctx context.Context, q Querier, id int64, approver model.Actor, reason string, now time.Time) error {
	return resolveRequest(ctx, q,
		`UPDATE approval_requests SET status = 'denied', approver_id = ?, approver_name = ?,
			approver_role = ?, denial_reason = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		approver.ID, approver.Name, approver.Role, reason, formatTime(now), id,
	)
}

func resolveRequest(ctx context.Context, q Querier, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("resolving approval request: %w", translateErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking approval update: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}
