package custody

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// KitHistory returns a page of the kit's merged custody and maintenance history.
func (s *Service) KitHistory(ctx context.Context, code string, f store.HistoryFilter) ([]model.LedgerEntry, error) {
	kit, err := s.GetKit(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := validateHistoryFilter(f); err != nil {
		return nil, err
	}
	f = f.Normalize()
	f.KitID = kit.ID
	f.ActorID = 0
	return store.History(ctx, s.DB, f)
}

// ActorHistory returns a page of records the user took part in. Users may read
// their own history; custody handlers may read anyone's.
func (s *Service) ActorHistory(ctx context.Context, actor model.Actor, userID int64, f store.HistoryFilter) ([]model.LedgerEntry, error) {
	if userID != actor.ID && !s.Policy.CanHandleCustody(actor) {
		return nil, ErrNotAuthorized
	}
	if err := validateHistoryFilter(f); err != nil {
		return nil, err
	}
	f = f.Normalize()
	f.ActorID = userID
	return store.History(ctx, s.DB, f)
}

func validateHistoryFilter(f store.HistoryFilter) error {
	for _, t := range f.EventTypes {
		if !t.IsCustody() && !t.IsMaintenance() {
			return invalid("event_type", "unknown event type "+string(t))
		}
	}
	if f.Since != nil && f.Until != nil && !f.Since.Before(*f.Until) {
		return invalid("since", "must be before until")
	}
	return nil
}

// Drift describes a kit whose registry row does not match its replayed ledger.
type Drift struct {
	KitID    int64          `json:"kit_id"`
	KitCode  string         `json:"kit_code"`
	Stored   model.KitState `json:"stored"`
	Replayed model.KitState `json:"replayed"`
	Error    string         `json:"error,omitempty"`
}

// Verify replays every kit's ledger from an empty state and compares the result
// with the registry. It returns one Drift per mismatching kit.
func (s *Service) Verify(ctx context.Context) (drifts []Drift, err error) {
	ctx, span := s.spanTracer().Start(ctx, "custody.verify")
	defer func() {
		span.SetAttributes(attribute.Int("drift.count", len(drifts)))
		s.endSpan(span, "verify", err)
	}()

	kits, err := store.ListKits(ctx, s.DB, "")
	if err != nil {
		return nil, err
	}

	drifts = []Drift{}
	for _, kit := range kits {
		entries, err := store.History(ctx, s.DB, store.HistoryFilter{KitID: kit.ID})
		if err != nil {
			return nil, err
		}

		replayed, err := model.Replay(entries)
		switch {
		case err != nil:
			drifts = append(drifts, Drift{KitID: kit.ID, KitCode: kit.Code, Stored: kit.KitState, Replayed: replayed, Error: err.Error()})
		case !replayed.Equal(kit.KitState):
			drifts = append(drifts, Drift{KitID: kit.ID, KitCode: kit.Code, Stored: kit.KitState, Replayed: replayed})
		}
	}

	if len(drifts) > 0 {
		s.Logger.Error("ledger drift detected", "kits", len(drifts))
	}
	return drifts, nil
}
