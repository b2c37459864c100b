package model

import "time"

// ApprovalStatus is the lifecycle state of an off-site request.
type ApprovalStatus string

// Approval statuses. Approved and denied are terminal.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// Terminal reports whether no further transition is allowed.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalDenied
}

// ApprovalRequest is a request to take a kit off the premises.
type ApprovalRequest struct {
	ID                 int64          `json:"id"`
	KitID              int64          `json:"kit_id"`
	RequesterID        int64          `json:"requester_id"`
	RequesterName      string         `json:"requester_name"`
	CustodianName      string         `json:"custodian_name"`
	Status             ApprovalStatus `json:"status"`
	ApproverID         *int64         `json:"approver_id,omitempty"`
	ApproverName       string         `json:"approver_name,omitempty"`
	ApproverRole       Role           `json:"approver_role,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	DenialReason       string         `json:"denial_reason,omitempty"`
	ExpectedReturnDate *time.Time     `json:"expected_return_date,omitempty"`
	Attestation        Attestation    `json:"attestation"`
	CustodyEventID     *int64         `json:"custody_event_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`

	// Joined fields (not always populated).
	KitCode string `json:"kit_code,omitempty"`
	KitName string `json:"kit_name,omitempty"`
}
