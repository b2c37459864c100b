package model

import "fmt"

// Apply folds a single ledger entry into state. It fails if the entry is not a
// legal transition from the current status.
func (s KitState) Apply(e LedgerEntry) (KitState, error) {
	next, err := NextStatus(s.Status, e.EventType)
	if err != nil {
		return s, fmt.Errorf("ledger seq %d: %w", e.Seq, err)
	}

	out := s
	out.Status = next

	switch e.EventType {
	case EventCheckoutOnPrem, EventCheckoutOffsite:
		if e.Custody == nil {
			return s, fmt.Errorf("ledger seq %d: missing custody record", e.Seq)
		}
		at := e.CreatedAt
		out.CustodianID = e.Custody.CustodianID
		out.CustodianName = e.Custody.CustodianName
		out.LocationType = e.Custody.LocationType
		out.ExpectedReturnDate = e.Custody.ExpectedReturnDate
		out.CustodyStartedAt = &at
	case EventTransfer:
		if e.Custody == nil {
			return s, fmt.Errorf("ledger seq %d: missing custody record", e.Seq)
		}
		at := e.CreatedAt
		out.CustodianID = e.Custody.CustodianID
		out.CustodianName = e.Custody.CustodianName
		out.CustodyStartedAt = &at
	case EventCheckin, EventLost, EventFound:
		out.CustodianID = nil
		out.CustodianName = ""
		out.LocationType = ""
		out.ExpectedReturnDate = nil
		out.CustodyStartedAt = nil
	case EventMaintenanceClose:
		at := e.CreatedAt
		out.LastMaintenanceAt = &at
	}

	return out, nil
}

// Replay derives a kit's state from its ledger, oldest entry first, starting
// from a freshly registered kit.
func Replay(entries []LedgerEntry) (KitState, error) {
	state := KitState{Status: KitStatusAvailable}
	for _, e := range entries {
		var err error
		state, err = state.Apply(e)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}
