package custody

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/orozarna/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestComputeWarnings(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	registered := now.AddDate(0, 0, -10)
	cfg := DefaultWarningConfig()

	tests := []struct {
		name string
		kit  model.Kit
		cfg  WarningConfig
		want model.Warnings
	}{
		{
			name: "returned yesterday is one day overdue",
			kit: model.Kit{CreatedAt: registered, KitState: model.KitState{
				Status:             model.KitStatusCheckedOut,
				CustodianName:      "Alice",
				ExpectedReturnDate: ptr(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)),
				CustodyStartedAt:   ptr(now.Add(-36 * time.Hour)),
			}},
			cfg:  cfg,
			want: model.Warnings{OverdueReturn: true, DaysOverdue: 1, DaysCheckedOut: 1, DaysSinceMaintenance: 10},
		},
		{
			name: "due today is not overdue",
			kit: model.Kit{CreatedAt: registered, KitState: model.KitState{
				Status:             model.KitStatusCheckedOut,
				CustodianName:      "Alice",
				ExpectedReturnDate: ptr(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)),
				CustodyStartedAt:   ptr(now.Add(-time.Hour)),
			}},
			cfg:  cfg,
			want: model.Warnings{DaysSinceMaintenance: 10},
		},
		{
			name: "eight days without return date is extended custody",
			kit: model.Kit{CreatedAt: registered, KitState: model.KitState{
				Status:           model.KitStatusCheckedOut,
				CustodianName:    "Alice",
				CustodyStartedAt: ptr(now.AddDate(0, 0, -8)),
			}},
			cfg:  cfg,
			want: model.Warnings{ExtendedCustody: true, DaysCheckedOut: 8, DaysSinceMaintenance: 10},
		},
		{
			name: "grace days hold back the overdue warning",
			kit: model.Kit{CreatedAt: registered, KitState: model.KitState{
				Status:             model.KitStatusCheckedOut,
				CustodianName:      "Alice",
				ExpectedReturnDate: ptr(time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)),
				CustodyStartedAt:   ptr(now.Add(-72 * time.Hour)),
			}},
			cfg:  WarningConfig{OverdueGraceDays: 2, ExtendedCustodyDays: 7, MaintenanceIntervalDays: 90},
			want: model.Warnings{DaysCheckedOut: 3, DaysSinceMaintenance: 10},
		},
		{
			name: "maintenance interval counts from last close",
			kit: model.Kit{CreatedAt: now.AddDate(-1, 0, 0), KitState: model.KitState{
				Status:            model.KitStatusAvailable,
				LastMaintenanceAt: ptr(now.AddDate(0, 0, -91)),
			}},
			cfg:  cfg,
			want: model.Warnings{OverdueMaintenance: true, DaysSinceMaintenance: 91},
		},
		{
			name: "never serviced counts from registration",
			kit:  model.Kit{CreatedAt: now.AddDate(0, 0, -90), KitState: model.KitState{Status: model.KitStatusAvailable}},
			cfg:  cfg,
			want: model.Warnings{OverdueMaintenance: true, DaysSinceMaintenance: 90},
		},
		{
			name: "zero thresholds disable warnings",
			kit: model.Kit{CreatedAt: now.AddDate(0, 0, -400), KitState: model.KitState{
				Status:           model.KitStatusCheckedOut,
				CustodianName:    "Alice",
				CustodyStartedAt: ptr(now.AddDate(0, 0, -30)),
			}},
			cfg:  WarningConfig{},
			want: model.Warnings{DaysCheckedOut: 30, DaysSinceMaintenance: 400},
		},
		{
			name: "kits in maintenance are not flagged for service",
			kit:  model.Kit{CreatedAt: now.AddDate(0, 0, -200), KitState: model.KitState{Status: model.KitStatusInMaintenance}},
			cfg:  cfg,
			want: model.Warnings{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWarnings(&tt.kit, now, tt.cfg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeWarningsUsesLocalCalendarDay(t *testing.T) {
	ljubljana, err := time.LoadLocation("Europe/Ljubljana")
	require.NoError(t, err)

	// 23:30 UTC on the 14th is already the 15th in Ljubljana.
	now := time.Date(2025, 6, 14, 23, 30, 0, 0, time.UTC)
	kit := &model.Kit{CreatedAt: now, KitState: model.KitState{
		Status:             model.KitStatusCheckedOut,
		CustodianName:      "Alice",
		ExpectedReturnDate: ptr(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)),
		CustodyStartedAt:   ptr(now),
	}}

	utc := ComputeWarnings(kit, now, DefaultWarningConfig())
	assert.False(t, utc.OverdueReturn)

	cfg := DefaultWarningConfig()
	cfg.Location = ljubljana
	local := ComputeWarnings(kit, now, cfg)
	assert.True(t, local.OverdueReturn)
	assert.Equal(t, 1, local.DaysOverdue)
}

func TestServiceWarnings(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	registerKit(t, svc, "KIT-001")
	registerKit(t, svc, "KIT-002")

	due := clock.Now().AddDate(0, 0, 1)
	_, err := svc.CheckoutOnPrem(ctx, armorer, CheckoutInput{KitCode: "KIT-001", CustodianName: "Alice", ExpectedReturnDate: &due})
	require.NoError(t, err)

	all, err := svc.AllWarnings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	clock.Advance(8 * 24 * time.Hour)

	w, err := svc.KitWarnings(ctx, "KIT-001")
	require.NoError(t, err)
	assert.True(t, w.OverdueReturn)
	assert.Equal(t, 7, w.DaysOverdue)
	assert.True(t, w.ExtendedCustody)
	assert.Equal(t, 8, w.DaysCheckedOut)
	assert.Equal(t, "KIT-001", w.KitCode)

	all, err = svc.AllWarnings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "KIT-001", all[0].KitCode)

	_, err = svc.KitWarnings(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrKitNotFound)
}
