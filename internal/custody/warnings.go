package custody

import (
	"context"
	"time"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// WarningConfig holds the soft warning thresholds. A zero ExtendedCustodyDays
// or MaintenanceIntervalDays disables that warning.
type WarningConfig struct {
	OverdueGraceDays        int
	ExtendedCustodyDays     int
	MaintenanceIntervalDays int

	// Location decides where a calendar day starts for return dates.
	Location *time.Location
}

// DefaultWarningConfig returns the stock thresholds.
func DefaultWarningConfig() WarningConfig {
	return WarningConfig{
		OverdueGraceDays:        0,
		ExtendedCustodyDays:     7,
		MaintenanceIntervalDays: 90,
		Location:                time.UTC,
	}
}

const day = 24 * time.Hour

// ComputeWarnings derives the advisories for kit at now. It has no side effects.
func ComputeWarnings(kit *model.Kit, now time.Time, cfg WarningConfig) model.Warnings {
	w := model.Warnings{KitID: kit.ID, KitCode: kit.Code, KitName: kit.Name}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	if kit.ExpectedReturnDate != nil {
		due := kit.ExpectedReturnDate
		local := now.In(loc)
		today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		if overdue := calendarDays(dueDay, today); overdue > cfg.OverdueGraceDays {
			w.OverdueReturn = true
			w.DaysOverdue = overdue
		}
	}

	if kit.Status == model.KitStatusCheckedOut && kit.CustodyStartedAt != nil {
		held := now.Sub(*kit.CustodyStartedAt)
		w.DaysCheckedOut = int(held / day)
		if cfg.ExtendedCustodyDays > 0 && held >= time.Duration(cfg.ExtendedCustodyDays)*day {
			w.ExtendedCustody = true
		}
	}

	if kit.Status != model.KitStatusInMaintenance && kit.Status != model.KitStatusLost {
		since := kit.CreatedAt
		if kit.LastMaintenanceAt != nil {
			since = *kit.LastMaintenanceAt
		}
		if !since.IsZero() && now.After(since) {
			w.DaysSinceMaintenance = int(now.Sub(since) / day)
		}
		if cfg.MaintenanceIntervalDays > 0 && w.DaysSinceMaintenance >= cfg.MaintenanceIntervalDays {
			w.OverdueMaintenance = true
		}
	}

	return w
}

// calendarDays returns the number of days from a to b, both at midnight UTC.
func calendarDays(a, b time.Time) int {
	return int(b.Sub(a).Round(time.Hour) / day)
}

// KitWarnings returns the advisories for one kit.
func (s *Service) KitWarnings(ctx context.Context, code string) (model.Warnings, error) {
	kit, err := s.GetKit(ctx, code)
	if err != nil {
		return model.Warnings{}, err
	}
	return ComputeWarnings(kit, s.Clock.Now(), s.Warnings), nil
}

// AllWarnings returns advisories for every kit that raises at least one.
func (s *Service) AllWarnings(ctx context.Context) ([]model.Warnings, error) {
	kits, err := store.ListKits(ctx, s.DB, "")
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	out := []model.Warnings{}
	for i := range kits {
		if w := ComputeWarnings(&kits[i], now, s.Warnings); w.Any() {
			out = append(out, w)
		}
	}
	return out, nil
}
