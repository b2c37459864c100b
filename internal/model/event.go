package model

import "time"

// EventType identifies a ledger record and doubles as the state machine input.
type EventType string

// Custody event types.
const (
	EventCheckoutOnPrem  EventType = "checkout_onprem"
	EventCheckoutOffsite EventType = "checkout_offsite"
	EventCheckin         EventType = "checkin"
	EventTransfer        EventType = "transfer"
	EventLost            EventType = "lost"
	EventFound           EventType = "found"
)

// Maintenance event types.
const (
	EventMaintenanceOpen  EventType = "maintenance_open"
	EventMaintenanceClose EventType = "maintenance_close"
)

// IsCustody reports whether t is stored in the custody ledger.
func (t EventType) IsCustody() bool {
	switch t {
	case EventCheckoutOnPrem, EventCheckoutOffsite, EventCheckin, EventTransfer, EventLost, EventFound:
		return true
	}
	return false
}

// IsMaintenance reports whether t is stored in the maintenance ledger.
func (t EventType) IsMaintenance() bool {
	return t == EventMaintenanceOpen || t == EventMaintenanceClose
}

// Attestation is the legal acknowledgment captured when off-site custody is requested.
type Attestation struct {
	Text          string    `json:"text"`
	Version       string    `json:"version,omitempty"`
	Signature     string    `json:"signature"`
	SignedAt      time.Time `json:"signed_at"`
	OriginAddress string    `json:"origin_address"`
}

// CustodyEvent is an immutable record of a change in who holds a kit.
type CustodyEvent struct {
	ID                 int64        `json:"id"`
	Seq                int64        `json:"seq"`
	KitID              int64        `json:"kit_id"`
	EventType          EventType    `json:"event_type"`
	InitiatedByID      int64        `json:"initiated_by_id"`
	InitiatedByName    string       `json:"initiated_by_name"`
	CustodianID        *int64       `json:"custodian_id,omitempty"`
	CustodianName      string       `json:"custodian_name,omitempty"`
	ApprovedByID       *int64       `json:"approved_by_id,omitempty"`
	ApprovedByName     string       `json:"approved_by_name,omitempty"`
	ApprovedByRole     Role         `json:"approved_by_role,omitempty"`
	ApprovalRequestID  *int64       `json:"approval_request_id,omitempty"`
	LocationType       LocationType `json:"location_type,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	ExpectedReturnDate *time.Time   `json:"expected_return_date,omitempty"`
	Attestation        *Attestation `json:"attestation,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// MaintenanceEvent is an immutable maintenance record. A session is an open row
// followed by a close row whose SessionID points back at it.
type MaintenanceEvent struct {
	ID            int64     `json:"id"`
	Seq           int64     `json:"seq"`
	KitID         int64     `json:"kit_id"`
	SessionID     *int64    `json:"session_id,omitempty"`
	IsOpen        bool      `json:"is_open"`
	OpenedByID    int64     `json:"opened_by_id"`
	OpenedByName  string    `json:"opened_by_name"`
	ClosedByID    *int64    `json:"closed_by_id,omitempty"`
	ClosedByName  string    `json:"closed_by_name,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	PartsReplaced string    `json:"parts_replaced,omitempty"`
	RoundCount    *int      `json:"round_count,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventType returns the ledger event type of the row.
func (m *MaintenanceEvent) EventType() EventType {
	if m.IsOpen {
		return EventMaintenanceOpen
	}
	return EventMaintenanceClose
}

// LedgerEntry is one position in a kit's merged custody and maintenance history.
// Exactly one of Custody or Maintenance is set.
type LedgerEntry struct {
	Seq         int64             `json:"seq"`
	KitID       int64             `json:"kit_id"`
	KitCode     string            `json:"kit_code,omitempty"`
	EventType   EventType         `json:"event_type"`
	CreatedAt   time.Time         `json:"created_at"`
	Custody     *CustodyEvent     `json:"custody,omitempty"`
	Maintenance *MaintenanceEvent `json:"maintenance,omitempty"`
}
