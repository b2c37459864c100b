package custody

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// CheckoutInput hands an available kit to a custodian on the premises.
type CheckoutInput struct {
	KitCode            string     `json:"kit_code"`
	CustodianName      string     `json:"custodian_name"`
	CustodianID        *int64     `json:"custodian_id,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	ExpectedReturnDate *time.Time `json:"expected_return_date,omitempty"`
}

// TransferInput moves a checked out kit to a new custodian.
type TransferInput struct {
	KitCode       string `json:"kit_code"`
	CustodianName string `json:"custodian_name"`
	CustodianID   *int64 `json:"custodian_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// NoteInput carries the kit and optional notes for checkin and lost/found reports.
type NoteInput struct {
	KitCode string `json:"kit_code"`
	Notes   string `json:"notes,omitempty"`
}

// CustodyResult is the outcome of a custody operation.
type CustodyResult struct {
	Event   *model.CustodyEvent `json:"event"`
	KitCode string              `json:"kit_code"`
	KitName string              `json:"kit_name"`
	Kit     *model.Kit          `json:"kit"`
}

// CheckoutOnPrem checks an available kit out to a custodian on the premises.
func (s *Service) CheckoutOnPrem(ctx context.Context, actor model.Actor, in CheckoutInput) (res *CustodyResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.checkout_onprem", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "checkout_onprem", err) }()

	if err := s.require(s.Policy.CanHandleCustody(actor)); err != nil {
		return nil, err
	}
	custodian := strings.TrimSpace(in.CustodianName)
	if custodian == "" {
		return nil, invalid("custodian_name", "is required")
	}

	return s.recordCustody(ctx, actor, in.KitCode, model.EventCheckoutOnPrem, ErrKitNotAvailable,
		func(kit *model.Kit) *model.CustodyEvent {
			return &model.CustodyEvent{
				CustodianID:        in.CustodianID,
				CustodianName:      custodian,
				LocationType:       model.LocationOnPremises,
				Notes:              in.Notes,
				ExpectedReturnDate: dateOnly(in.ExpectedReturnDate),
			}
		})
}

// Checkin returns a checked out kit.
func (s *Service) Checkin(ctx context.Context, actor model.Actor, in NoteInput) (res *CustodyResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.checkin", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "checkin", err) }()

	if err := s.require(s.Policy.CanHandleCustody(actor)); err != nil {
		return nil, err
	}

	return s.recordCustody(ctx, actor, in.KitCode, model.EventCheckin, ErrKitNotCheckedOut,
		func(kit *model.Kit) *model.CustodyEvent {
			return &model.CustodyEvent{
				CustodianID:   kit.CustodianID,
				CustodianName: kit.CustodianName,
				LocationType:  kit.LocationType,
				Notes:         in.Notes,
			}
		})
}

// Transfer hands a checked out kit to a new custodian. Location and expected
// return date carry over; the custody clock restarts.
func (s *Service) Transfer(ctx context.Context, actor model.Actor, in TransferInput) (res *CustodyResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.transfer", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "transfer", err) }()

	if err := s.require(s.Policy.CanHandleCustody(actor)); err != nil {
		return nil, err
	}
	custodian := strings.TrimSpace(in.CustodianName)
	if custodian == "" {
		return nil, invalid("custodian_name", "is required")
	}

	return s.recordCustody(ctx, actor, in.KitCode, model.EventTransfer, ErrKitNotCheckedOut,
		func(kit *model.Kit) *model.CustodyEvent {
			return &model.CustodyEvent{
				CustodianID:        in.CustodianID,
				CustodianName:      custodian,
				LocationType:       kit.LocationType,
				Notes:              in.Notes,
				ExpectedReturnDate: kit.ExpectedReturnDate,
			}
		})
}

// ReportLost marks an available or checked out kit as lost.
func (s *Service) ReportLost(ctx context.Context, actor model.Actor, in NoteInput) (res *CustodyResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.report_lost", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "report_lost", err) }()

	if err := s.require(s.Policy.CanHandleCustody(actor)); err != nil {
		return nil, err
	}

	return s.recordCustody(ctx, actor, in.KitCode, model.EventLost, ErrInvalidStateForReport,
		func(kit *model.Kit) *model.CustodyEvent {
			// The last custodian, if any, is kept on the record.
			return &model.CustodyEvent{
				CustodianID:   kit.CustodianID,
				CustodianName: kit.CustodianName,
				LocationType:  kit.LocationType,
				Notes:         in.Notes,
			}
		})
}

// ReportFound returns a lost kit to available.
func (s *Service) ReportFound(ctx context.Context, actor model.Actor, in NoteInput) (res *CustodyResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.report_found", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "report_found", err) }()

	if err := s.require(s.Policy.CanHandleCustody(actor)); err != nil {
		return nil, err
	}

	return s.recordCustody(ctx, actor, in.KitCode, model.EventFound, ErrInvalidStateForReport,
		func(kit *model.Kit) *model.CustodyEvent {
			return &model.CustodyEvent{Notes: in.Notes}
		})
}

// recordCustody is the guard-append-update sequence shared by every custody
// operation that acts on a kit directly. guard is the error returned when the
// kit's status does not allow ev.
func (s *Service) recordCustody(ctx context.Context, actor model.Actor, code string, ev model.EventType,
	guard error, build func(kit *model.Kit) *model.CustodyEvent) (*CustodyResult, error) {
	var res *CustodyResult
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

		e := build(kit)
		e.KitID = kit.ID
		e.EventType = ev
		e.InitiatedByID = actor.ID
		e.InitiatedByName = actor.Name
		e.CreatedAt = s.now()

		updated, err := s.appendCustody(ctx, tx, kit, e)
		if err != nil {
			return err
		}
		res = &CustodyResult{Event: e, KitCode: kit.Code, KitName: kit.Name, Kit: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("custody event recorded", "user", actor.Name, "kit", res.KitCode, "event", ev, "seq", res.Event.Seq)
	return res, nil
}

// appendCustody writes e and moves the kit to the state the record implies.
func (s *Service) appendCustody(ctx context.Context, tx *sql.Tx, kit *model.Kit, e *model.CustodyEvent) (*model.Kit, error) {
	if err := store.NewLedgerWriter(tx).AppendCustody(ctx, e); err != nil {
		return nil, err
	}
	return s.advance(ctx, tx, kit, model.LedgerEntry{
		Seq:       e.Seq,
		KitID:     kit.ID,
		KitCode:   kit.Code,
		EventType: e.EventType,
		CreatedAt: e.CreatedAt,
		Custody:   e,
	})
}

// advance folds a freshly appended entry into the kit's registry row. The same
// fold is used by Verify, so the registry and a ledger replay cannot disagree.
func (s *Service) advance(ctx context.Context, tx *sql.Tx, kit *model.Kit, entry model.LedgerEntry) (*model.Kit, error) {
	next, err := kit.KitState.Apply(entry)
	if err != nil {
		return nil, err
	}

	if err := store.SetKitState(ctx, tx, kit.ID, kit.Status, next, entry.CreatedAt); err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidStateTransition, err)
		}
		return nil, err
	}

	out := *kit
	out.KitState = next
	out.UpdatedAt = entry.CreatedAt
	return &out, nil
}
