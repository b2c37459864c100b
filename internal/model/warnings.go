package model

// Warnings are non-blocking advisories computed when a kit is read.
type Warnings struct {
	KitID   int64  `json:"kit_id"`
	KitCode string `json:"kit_code"`
	KitName string `json:"kit_name"`

	OverdueReturn bool `json:"overdue_return"`
	DaysOverdue   int  `json:"days_overdue,omitempty"`

	ExtendedCustody bool `json:"extended_custody"`
	DaysCheckedOut  int  `json:"days_checked_out,omitempty"`

	OverdueMaintenance   bool `json:"overdue_maintenance"`
	DaysSinceMaintenance int  `json:"days_since_maintenance,omitempty"`
}

// Any reports whether at least one warning is raised.
func (w Warnings) Any() bool {
	return w.OverdueReturn || w.ExtendedCustody || w.OverdueMaintenance
}
