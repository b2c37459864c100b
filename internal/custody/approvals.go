package custody

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// OffsiteRequestInput is a verified adult's request to take a kit off the premises.
type OffsiteRequestInput struct {
	KitCode            string     `json:"kit_code"`
	CustodianName      string     `json:"custodian_name"`
	Notes              string     `json:"notes,omitempty"`
	ExpectedReturnDate *time.Time `json:"expected_return_date,omitempty"`
	Signature          string     `json:"signature"`
	Accepted           bool       `json:"accepted"`

	// OriginAddress is filled in by the transport, not the requester.
	OriginAddress string `json:"-"`
}

// DecisionInput resolves a pending request.
type DecisionInput struct {
	RequestID    int64  `json:"request_id"`
	Approve      bool   `json:"approve"`
	DenialReason string `json:"denial_reason,omitempty"`
}

// DecisionResult is the resolved request and, on approval, the custody record it produced.
type DecisionResult struct {
	Request *model.ApprovalRequest `json:"approval_request"`
	Event   *model.CustodyEvent    `json:"custody_event,omitempty"`
	Kit     *model.Kit             `json:"kit,omitempty"`
}

// SubmitOffsiteRequest files a pending request. The attestation is snapshotted
// now, with the legal text currently configured.
func (s *Service) SubmitOffsiteRequest(ctx context.Context, actor model.Actor, in OffsiteRequestInput) (req *model.ApprovalRequest, err error) {
	ctx, span := s.startSpan(ctx, "custody.submit_offsite", actor, attribute.String("kit.code", in.KitCode))
	defer func() { s.endSpan(span, "submit_offsite", err) }()

	if !s.Policy.CanSubmitOffsite(actor) {
		return nil, ErrNotVerifiedAdult
	}
	signature := strings.TrimSpace(in.Signature)
	if !in.Accepted || signature == "" {
		return nil, ErrAttestationIncomplete
	}
	custodian := strings.TrimSpace(in.CustodianName)
	if custodian == "" {
		return nil, invalid("custodian_name", "is required")
	}

	now := s.now()
	due := dateOnly(in.ExpectedReturnDate)
	if due != nil && due.Before(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)) {
		return nil, invalid("expected_return_date", "is in the past")
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		kit, err := store.GetKitByCode(ctx, tx, in.KitCode)
		if err != nil {
			return err
		}
		if kit == nil {
			return ErrKitNotFound
		}
		if _, err := model.NextStatus(kit.Status, model.EventCheckoutOffsite); err != nil {
			return guardFailure(ErrKitNotAvailable, kit.Status, model.EventCheckoutOffsite)
		}

		pending, err := store.PendingRequestForKit(ctx, tx, kit.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return ErrDuplicatePendingRequest
		}

		req = &model.ApprovalRequest{
			KitID:              kit.ID,
			RequesterID:        actor.ID,
			RequesterName:      actor.Name,
			CustodianName:      custodian,
			Notes:              in.Notes,
			ExpectedReturnDate: due,
			Attestation: model.Attestation{
				Text:          s.Attestation.Text,
				Version:       s.Attestation.Version,
				Signature:     signature,
				SignedAt:      now,
				OriginAddress: in.OriginAddress,
			},
			CreatedAt: now,
			KitCode:   kit.Code,
			KitName:   kit.Name,
		}
		if err := store.CreateApprovalRequest(ctx, tx, req); err != nil {
			if errors.Is(err, store.ErrDuplicatePending) {
				return ErrDuplicatePendingRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("off-site request submitted", "user", actor.Name, "kit", req.KitCode, "request", req.ID)
	return req, nil
}

// DecideOffsiteRequest approves or denies a pending request. Approval appends
// the checkout_offsite record and checks the kit out in the same transaction.
func (s *Service) DecideOffsiteRequest(ctx context.Context, actor model.Actor, in DecisionInput) (res *DecisionResult, err error) {
	ctx, span := s.startSpan(ctx, "custody.decide_offsite", actor,
		attribute.Int64("request.id", in.RequestID), attribute.Bool("request.approve", in.Approve))
	defer func() { s.endSpan(span, "decide_offsite", err) }()

	if !s.Policy.CanApprove(actor) {
		return nil, ErrNotAuthorized
	}
	reason := strings.TrimSpace(in.DenialReason)
	if !in.Approve && reason == "" {
		return nil, ErrDenialReasonRequired
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		req, err := store.GetApprovalRequest(ctx, tx, in.RequestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrRequestNotFound
		}
		if req.Status != model.ApprovalPending {
			return ErrRequestNotPending
		}

		now := s.now()
		res = &DecisionResult{}

		if !in.Approve {
			if err := store.DenyRequest(ctx, tx, req.ID, actor, reason, now); err != nil {
				return resolveErr(err)
			}
		} else {
			event, kit, err := s.approve(ctx, tx, actor, req, now)
			if err != nil {
				return err
			}
			if err := store.ApproveRequest(ctx, tx, req.ID, actor, event.ID, now); err != nil {
				return resolveErr(err)
			}
			res.Event = event
			res.Kit = kit
		}

		res.Request, err = store.GetApprovalRequest(ctx, tx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("off-site request decided", "user", actor.Name, "kit", res.Request.KitCode,
		"request", res.Request.ID, "status", res.Request.Status)
	return res, nil
}

// approve appends the off-site checkout for req and moves its kit to checked_out.
func (s *Service) approve(ctx context.Context, tx *sql.Tx, actor model.Actor, req *model.ApprovalRequest, now time.Time) (*model.CustodyEvent, *model.Kit, error) {
	kit, err := store.GetKit(ctx, tx, req.KitID)
	if err != nil {
		return nil, nil, err
	}
	if kit == nil {
		return nil, nil, ErrKitNotFound
	}
	if _, err := model.NextStatus(kit.Status, model.EventCheckoutOffsite); err != nil {
		return nil, nil, guardFailure(ErrKitNoLongerAvailable, kit.Status, model.EventCheckoutOffsite)
	}

	attestation := req.Attestation
	approverID := actor.ID
	requestID := req.ID
	event := &model.CustodyEvent{
		KitID:              kit.ID,
		EventType:          model.EventCheckoutOffsite,
		InitiatedByID:      req.RequesterID,
		InitiatedByName:    req.RequesterName,
		CustodianName:      req.CustodianName,
		ApprovedByID:       &approverID,
		ApprovedByName:     actor.Name,
		ApprovedByRole:     actor.Role,
		ApprovalRequestID:  &requestID,
		LocationType:       model.LocationOffSite,
		Notes:              req.Notes,
		ExpectedReturnDate: req.ExpectedReturnDate,
		Attestation:        &attestation,
		CreatedAt:          now,
	}

	updated, err := s.appendCustody(ctx, tx, kit, event)
	if err != nil {
		return nil, nil, err
	}
	return event, updated, nil
}

func resolveErr(err error) error {
	if errors.Is(err, store.ErrNotPending) || errors.Is(err, store.ErrResolved) {
		return ErrRequestNotPending
	}
	return err
}

// ListPendingApprovals returns pending requests, oldest first, for approvers.
func (s *Service) ListPendingApprovals(ctx context.Context, actor model.Actor, f store.ApprovalFilter) ([]model.ApprovalRequest, error) {
	if !s.Policy.CanApprove(actor) {
		return nil, ErrNotAuthorized
	}
	f.Status = model.ApprovalPending
	return store.ListApprovalRequests(ctx, s.DB, f)
}

// ListApprovalRequests returns requests matching f. Actors who cannot approve
// only see their own.
func (s *Service) ListApprovalRequests(ctx context.Context, actor model.Actor, f store.ApprovalFilter) ([]model.ApprovalRequest, error) {
	if f.Status != "" && f.Status != model.ApprovalPending && !f.Status.Terminal() {
		return nil, invalid("status", "is not an approval status")
	}
	if !s.Policy.CanApprove(actor) {
		f.RequesterID = actor.ID
	}
	return store.ListApprovalRequests(ctx, s.DB, f)
}

// GetApprovalRequest returns a request to an approver or to its requester.
func (s *Service) GetApprovalRequest(ctx context.Context, actor model.Actor, id int64) (*model.ApprovalRequest, error) {
	req, err := store.GetApprovalRequest(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if !s.Policy.CanApprove(actor) && req.RequesterID != actor.ID {
		return nil, ErrNotAuthorized
	}
	return req, nil
}
