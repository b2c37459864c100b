package custody

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/erazemk/orozarna/internal/db"
	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
	"github.com/erazemk/orozarna/internal/testutil"
)

// TestReplayReproducesRegistry drives random operation sequences, legal or not,
// and checks that replaying each kit's ledger gives exactly the registry row.
func TestReplayReproducesRegistry(t *testing.T) {
	dir := t.TempDir()
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		run++
		database, err := db.Open(filepath.Join(dir, fmt.Sprintf("replay-%d.sqlite3", run)))
		if err != nil {
			rt.Fatalf("open: %v", err)
		}
		defer database.Close()
		if err := db.Migrate(database); err != nil {
			rt.Fatalf("migrate: %v", err)
		}

		clock := testutil.FixedClock()
		svc := NewService(database)
		svc.Clock = clock
		svc.Logger = testutil.NopLogger{}
		ctx := context.Background()

		codes := []string{"A", "B"}
		for _, code := range codes {
			if _, err := svc.RegisterKit(ctx, armorer, RegisterKitInput{Code: code, Name: code}); err != nil {
				rt.Fatalf("register: %v", err)
			}
		}

		ops := []string{"checkout", "checkin", "transfer", "lost", "found", "open", "close", "offsite"}
		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			code := rapid.SampledFrom(codes).Draw(rt, "kit")
			op := rapid.SampledFrom(ops).Draw(rt, "op")
			clock.Advance(time.Duration(rapid.IntRange(0, 72).Draw(rt, "hours")) * time.Hour)

			before, _ := svc.GetKit(ctx, code)
			entriesBefore, _ := store.History(ctx, database, store.HistoryFilter{KitID: before.ID})

			err := apply(ctx, svc, op, code, i)

			after, _ := svc.GetKit(ctx, code)
			entriesAfter, _ := store.History(ctx, database, store.HistoryFilter{KitID: before.ID})
			switch {
			case err == nil && len(entriesAfter) != len(entriesBefore)+1:
				rt.Fatalf("%s on %s succeeded but wrote %d records", op, code, len(entriesAfter)-len(entriesBefore))
			case err != nil && KindOf(err) == KindInternal:
				rt.Fatalf("%s on %s: unexpected error %v", op, code, err)
			case err != nil && (len(entriesAfter) != len(entriesBefore) || !after.KitState.Equal(before.KitState)):
				rt.Fatalf("%s on %s failed with %v but changed state", op, code, err)
			}
		}

		drifts, err := svc.Verify(ctx)
		if err != nil {
			rt.Fatalf("verify: %v", err)
		}
		if len(drifts) > 0 {
			rt.Fatalf("drift after replay: %+v", drifts)
		}
	})
}

func apply(ctx context.Context, svc *Service, op, code string, i int) error {
	name := fmt.Sprintf("fencer-%d", i)
	due := svc.Clock.Now().AddDate(0, 0, 3)
	var err error
	switch op {
	case "checkout":
		_, err = svc.CheckoutOnPrem(ctx, armorer, CheckoutInput{KitCode: code, CustodianName: name, ExpectedReturnDate: &due})
	case "checkin":
		_, err = svc.Checkin(ctx, coach, NoteInput{KitCode: code})
	case "transfer":
		_, err = svc.Transfer(ctx, coach, TransferInput{KitCode: code, CustodianName: name})
	case "lost":
		_, err = svc.ReportLost(ctx, armorer, NoteInput{KitCode: code})
	case "found":
		_, err = svc.ReportFound(ctx, armorer, NoteInput{KitCode: code})
	case "open":
		_, err = svc.OpenMaintenance(ctx, armorer, MaintenanceInput{KitCode: code})
	case "close":
		_, err = svc.CloseMaintenance(ctx, armorer, MaintenanceInput{KitCode: code})
	case "offsite":
		var req *model.ApprovalRequest
		req, err = svc.SubmitOffsiteRequest(ctx, parent, OffsiteRequestInput{
			KitCode: code, CustodianName: name, Signature: "Petra", Accepted: true, ExpectedReturnDate: &due,
		})
		if err == nil {
			_, err = svc.DecideOffsiteRequest(ctx, coach, DecisionInput{RequestID: req.ID, Approve: true})
		}
	}
	return err
}
