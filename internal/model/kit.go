package model

import (
	"errors"
	"fmt"
	"time"
)

// KitStatus is the custody state of a kit.
type KitStatus string

// Kit statuses.
const (
	KitStatusAvailable     KitStatus = "available"
	KitStatusCheckedOut    KitStatus = "checked_out"
	KitStatusInMaintenance KitStatus = "in_maintenance"
	KitStatusLost          KitStatus = "lost"
)

// Valid reports whether s is one of the known statuses.
func (s KitStatus) Valid() bool {
	switch s {
	case KitStatusAvailable, KitStatusCheckedOut, KitStatusInMaintenance, KitStatusLost:
		return true
	}
	return false
}

// LocationType says where a checked out kit is held.
type LocationType string

// Location types.
const (
	LocationOnPremises LocationType = "on_premises"
	LocationOffSite    LocationType = "off_site"
)

// KitState is the part of a kit derived from its ledger.
type KitState struct {
	Status             KitStatus    `json:"status"`
	CustodianID        *int64       `json:"custodian_id,omitempty"`
	CustodianName      string       `json:"custodian_name,omitempty"`
	LocationType       LocationType `json:"location_type,omitempty"`
	ExpectedReturnDate *time.Time   `json:"expected_return_date,omitempty"`
	CustodyStartedAt   *time.Time   `json:"custody_started_at,omitempty"`
	LastMaintenanceAt  *time.Time   `json:"last_maintenance_at,omitempty"`
}

// Equal compares two states field by field, including the pointed-to times.
func (s KitState) Equal(o KitState) bool {
	return s.Status == o.Status &&
		equalInt64(s.CustodianID, o.CustodianID) &&
		s.CustodianName == o.CustodianName &&
		s.LocationType == o.LocationType &&
		equalTime(s.ExpectedReturnDate, o.ExpectedReturnDate) &&
		equalTime(s.CustodyStartedAt, o.CustodyStartedAt) &&
		equalTime(s.LastMaintenanceAt, o.LastMaintenanceAt)
}

// Kit is a registered equipment bundle.
type Kit struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	KitState
	SerialSealed []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ErrInvalidTransition is wrapped by every guard failure of the kit state machine.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError describes a rejected transition.
type TransitionError struct {
	From  KitStatus
	Event EventType
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to kit in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// kitTransitions is the complete kit state machine. Anything absent is rejected.
var kitTransitions = map[KitStatus]map[EventType]KitStatus{
	KitStatusAvailable: {
		EventCheckoutOnPrem:  KitStatusCheckedOut,
		EventCheckoutOffsite: KitStatusCheckedOut,
		EventMaintenanceOpen: KitStatusInMaintenance,
		EventLost:            KitStatusLost,
	},
	KitStatusCheckedOut: {
		EventCheckin:  KitStatusAvailable,
		EventTransfer: KitStatusCheckedOut,
		EventLost:     KitStatusLost,
	},
	KitStatusInMaintenance: {
		EventMaintenanceClose: KitStatusAvailable,
	},
	KitStatusLost: {
		EventFound: KitStatusAvailable,
	},
}

// NextStatus returns the status a kit moves to when ev is applied in status from.
func NextStatus(from KitStatus, ev EventType) (KitStatus, error) {
	to, ok := kitTransitions[from][ev]
	if !ok {
		return "", &TransitionError{From: from, Event: ev}
	}
	return to, nil
}

func equalInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
