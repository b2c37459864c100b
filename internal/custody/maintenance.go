package custody

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// MaintenanceInput describes either end of a maintenance session.
type MaintenanceInput struct {
	KitCode       string `json:"kit_code"`
	Notes         string `json:"notes,omitempty"`
	PartsReplaced string `json:"parts_replaced,omitempty"`
	RoundCount    *int   `json:"round_count,omitempty"`
}

// MaintenanceResult is the outcome of a maintenance operation.
type MaintenanceResult struct {
	Event   *model.MaintenanceEvent `json:"event"`
	KitCode string                  `json:"kit_code"`
	KitName string                  `json:"kit_name"`
	Kit     *model.Kit              `json:"kit"`
}

// OpenMaintenance takes an available kit into maintenance.
func (s *Service) OpenMaintenance(ctx context.Context, actor model.Actor, in MaintenanceInput) (res *MaintenanceResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.maintenance_open", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "maintenance_open", err) }()

	if err := s.checkMaintenance(actor, in); err != nil {
		return nil, err
	}

	return s.recordMaintenance(ctx, actor, in.KitCode, model.EventMaintenanceOpen, ErrKitNotAvailable,
		func(tx *sql.Tx, kit *model.Kit) (*model.MaintenanceEvent, error) {
			open, err := store.OpenMaintenanceSession(ctx, tx, kit.ID)
			if err != nil {
				return nil, err
			}
			if open != nil {
				return nil, fmt.Errorf("%w: session %d is still open", ErrKitNotAvailable, open.ID)
			}
			return &model.MaintenanceEvent{
				IsOpen:        true,
				OpenedByID:    actor.ID,
				OpenedByName:  actor.Name,
				Notes:         in.Notes,
				PartsReplaced: in.PartsReplaced,
				RoundCount:    in.RoundCount,
			}, nil
		})
}

// CloseMaintenance ends the kit's open session and returns it to available.
// The close is a second record pointing at the open one.
func (s *Service) CloseMaintenance(ctx context.Context, actor model.Actor, in MaintenanceInput) (res *MaintenanceResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.maintenance_close", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "maintenance_close", err) }()

	if err := s.checkMaintenance(actor, in); err != nil {
		return nil, err
	}

	return s.recordMaintenance(ctx, actor, in.KitCode, model.EventMaintenanceClose, ErrKitNotInMaintenance,
		func(tx *sql.Tx, kit *model.Kit) (*model.MaintenanceEvent, error) {
			open, err := store.OpenMaintenanceSession(ctx, tx, kit.ID)
			if err != nil {
				return nil, err
			}
			if open == nil {
				return nil, fmt.Errorf("kit %s is in maintenance without an open session", kit.Code)
			}
			closedBy := actor.ID
			return &model.MaintenanceEvent{
				SessionID:     &open.ID,
				OpenedByID:    open.OpenedByID,
				OpenedByName:  open.OpenedByName,
				ClosedByID:    &closedBy,
				ClosedByName:  actor.Name,
				Notes:         in.Notes,
				PartsReplaced: in.PartsReplaced,
				RoundCount:    in.RoundCount,
			}, nil
		})
}

func (s *Service) checkMaintenance(actor model.Actor, in MaintenanceInput) error {
	if err := s.require(s.Policy.CanMaintain(actor)); err != nil {
		return err
	}
	if in.RoundCount != nil && *in.RoundCount < 0 {
		return invalid("round_count", "must not be negative")
	}
	return nil
}

func (s *Service) recordMaintenance(ctx context.Context, actor model.Actor, code string, ev model.EventType,
	guard error, build func(tx *sql.Tx, kit *model.Kit) (*model.MaintenanceEvent, error)) (*MaintenanceResult, error) {
	var res *MaintenanceResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		kit, err := store.GetKitByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if kit == nil {
			return ErrKitNotFound
		}
		if _, err := model.NextStatus(kit.Status, ev); err != nil {
			return guardFailure(guard, kit.Status, ev)
		}

		e, err := build(tx, kit)
		if err != nil {
			return err
		}
		e.KitID = kit.ID
		e.CreatedAt = s.now()

		if err := store.NewLedgerWriter(tx).AppendMaintenance(ctx, e); err != nil {
			return err
		}
		updated, err := s.advance(ctx, tx, kit, model.LedgerEntry{
			Seq:         e.Seq,
			KitID:       kit.ID,
			KitCode:     kit.Code,
			EventType:   e.EventType(),
			CreatedAt:   e.CreatedAt,
			Maintenance: e,
		})
		if err != nil {
			return err
		}
		res = &MaintenanceResult{Event: e, KitCode: kit.Code, KitName: kit.Name, Kit: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("maintenance event recorded", "user", actor.Name, "kit", res.KitCode, "event", ev, "seq", res.Event.Seq)
	return res, nil
}
