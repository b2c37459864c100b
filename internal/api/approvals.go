package api

import (
	"net/http"
	"strconv"

	"github.com/erazemk/orozarna/internal/custody"
	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// ApprovalsHandler handles the off-site approval workflow.
type ApprovalsHandler struct {
	Custody *custody.Service
}

type submitRequest struct {
	KitCode            string `json:"kit_code"`
	CustodianName      string `json:"custodian_name"`
	Notes              string `json:"notes"`
	ExpectedReturnDate string `json:"expected_return_date"`
	Signature          string `json:"signature"`
	Accepted           bool   `json:"accepted"`
}

type decisionRequest struct {
	Approve      bool   `json:"approve"`
	DenialReason string `json:"denial_reason"`
}

// Submit handles POST /api/approvals. The origin address is taken from the
// connection, never from the body.
func (h *ApprovalsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	due, err := parseDate("expected_return_date", req.ExpectedReturnDate)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorFrom(r)
	ar, err := h.Custody.SubmitOffsiteRequest(r.Context(), actor, custody.OffsiteRequestInput{
		KitCode:            req.KitCode,
		CustodianName:      req.CustodianName,
		Notes:              req.Notes,
		ExpectedReturnDate: due,
		Signature:          req.Signature,
		Accepted:           req.Accepted,
		OriginAddress:      clientAddress(r),
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, ar)
}

// List handles GET /api/approvals. Accepts status, kit_id, limit and offset.
func (h *ApprovalsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ApprovalFilter{Status: model.ApprovalStatus(q.Get("status"))}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				jsonError(w, http.StatusBadRequest, name+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}
	if v := q.Get("kit_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid kit_id")
			return
		}
		f.KitID = id
	}

	// The pending queue is the approver work list.
	list := h.Custody.ListApprovalRequests
	if f.Status == model.ApprovalPending {
		list = h.Custody.ListPendingApprovals
	}
	reqs, err := list(r.Context(), actorFrom(r), f)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []model.ApprovalRequest{}
	}
	jsonResponse(w, http.StatusOK, reqs)
}

// Get handles GET /api/approvals/{id}.
func (h *ApprovalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	ar, err := h.Custody.GetApprovalRequest(r.Context(), actorFrom(r), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, ar)
}

// Decide handles POST /api/approvals/{id}/decision.
func (h *ApprovalsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	res, err := h.Custody.DecideOffsiteRequest(r.Context(), actor, custody.DecisionInput{
		RequestID:    id,
		Approve:      req.Approve,
		DenialReason: req.DenialReason,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, res)
}
