package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/orozarna/internal/custody"
	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// dateLayout is the wire format of calendar dates.
const dateLayout = "2006-01-02"

// KitsHandler handles kit registry, custody and maintenance endpoints.
type KitsHandler struct {
	Custody *custody.Service
}

type kitResponse struct {
	*model.Kit
	Serial   string         `json:"serial,omitempty"`
	Warnings model.Warnings `json:"warnings"`
}

type checkoutRequest struct {
	CustodianName      string `json:"custodian_name"`
	CustodianID        *int64 `json:"custodian_id,omitempty"`
	Notes              string `json:"notes"`
	ExpectedReturnDate string `json:"expected_return_date"`
}

type transferRequest struct {
	CustodianName string `json:"custodian_name"`
	CustodianID   *int64 `json:"custodian_id,omitempty"`
	Notes         string `json:"notes"`
}

type noteRequest struct {
	Notes string `json:"notes"`
}

type maintenanceRequest struct {
	Notes         string `json:"notes"`
	PartsReplaced string `json:"parts_replaced"`
	RoundCount    *int   `json:"round_count,omitempty"`
}

// parseDate parses an optional calendar date.
func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date (YYYY-MM-DD)", field)
	}
	return &t, nil
}

// parseTime accepts RFC 3339 timestamps or bare dates.
func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	return parseDate(field, s)
}

// parseHistoryFilter reads event_type, since, until, order, limit and offset.
func parseHistoryFilter(r *http.Request) (store.HistoryFilter, error) {
	q := r.URL.Query()
	var f store.HistoryFilter

	for _, v := range q["event_type"] {
		for t := range strings.SplitSeq(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.EventTypes = append(f.EventTypes, model.EventType(t))
			}
		}
	}

	var err error
	if f.Since, err = parseTime("since", q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = parseTime("until", q.Get("until")); err != nil {
		return f, err
	}

	switch q.Get("order") {
	case "", "asc":
	case "desc":
		f.Descending = true
	default:
		return f, errors.New("order must be asc or desc")
	}

	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
	}
	return f, nil
}

// List handles GET /api/kits.
func (h *KitsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.KitStatus(r.URL.Query().Get("status"))
	kits, err := h.Custody.ListKits(r.Context(), status)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if kits == nil {
		kits = []model.Kit{}
	}
	jsonResponse(w, http.StatusOK, kits)
}

// Register handles POST /api/kits.
func (h *KitsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req custody.RegisterKitInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	kit, err := h.Custody.RegisterKit(r.Context(), actor, req)
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, kit)
}

// Get handles GET /api/kits/{code}. Kit managers also receive the unsealed serial.
func (h *KitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	kit, err := h.Custody.GetKit(r.Context(), code)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	warnings, err := h.Custody.KitWarnings(r.Context(), code)
	if err != nil {
		serviceError(w, r, err)
		return
	}

	resp := kitResponse{Kit: kit, Warnings: warnings}
	if actor := actorFrom(r); h.Custody.Policy.CanManageKits(actor) && len(kit.SerialSealed) > 0 {
		serial, err := h.Custody.RevealSerial(r.Context(), actor, code)
		if err != nil && !errors.Is(err, custody.ErrSerialUnavailable) {
			serviceError(w, r, err)
			return
		}
		resp.Serial = serial
	}
	jsonResponse(w, http.StatusOK, resp)
}

// History handles GET /api/kits/{code}/history.
func (h *KitsHandler) History(w http.ResponseWriter, r *http.Request) {
	f, err := parseHistoryFilter(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.Custody.KitHistory(r.Context(), r.PathValue("code"), f)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Warnings handles GET /api/kits/{code}/warnings.
func (h *KitsHandler) Warnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Custody.KitWarnings(r.Context(), r.PathValue("code"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, warnings)
}

// AllWarnings handles GET /api/warnings: every kit with at least one warning.
func (h *KitsHandler) AllWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Custody.AllWarnings(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if warnings == nil {
		warnings = []model.Warnings{}
	}
	jsonResponse(w, http.StatusOK, warnings)
}

// Checkout handles POST /api/kits/{code}/checkout.
func (h *KitsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
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
	res, err := h.Custody.CheckoutOnPrem(r.Context(), actor, custody.CheckoutInput{
		KitCode:            r.PathValue("code"),
		CustodianName:      req.CustodianName,
		CustodianID:        req.CustodianID,
		Notes:              req.Notes,
		ExpectedReturnDate: due,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, res)
}

// Checkin handles POST /api/kits/{code}/checkin.
func (h *KitsHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	h.noteOperation(w, r, h.Custody.Checkin)
}

// Lost handles POST /api/kits/{code}/lost.
func (h *KitsHandler) Lost(w http.ResponseWriter, r *http.Request) {
	h.noteOperation(w, r, h.Custody.ReportLost)
}

// Found handles POST /api/kits/{code}/found.
func (h *KitsHandler) Found(w http.ResponseWriter, r *http.Request) {
	h.noteOperation(w, r, h.Custody.ReportFound)
}

func (h *KitsHandler) noteOperation(w http.ResponseWriter, r *http.Request,
	op func(context.Context, model.Actor, custody.NoteInput) (*custody.CustodyResult, error)) {
	var req noteRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	res, err := op(r.Context(), actor, custody.NoteInput{KitCode: r.PathValue("code"), Notes: req.Notes})
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, res)
}

// Transfer handles POST /api/kits/{code}/transfer.
func (h *KitsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	res, err := h.Custody.Transfer(r.Context(), actor, custody.TransferInput{
		KitCode:       r.PathValue("code"),
		CustodianName: req.CustodianName,
		CustodianID:   req.CustodianID,
		Notes:         req.Notes,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, res)
}

// OpenMaintenance handles POST /api/kits/{code}/maintenance/open.
func (h *KitsHandler) OpenMaintenance(w http.ResponseWriter, r *http.Request) {
	h.maintenance(w, r, h.Custody.OpenMaintenance)
}

// CloseMaintenance handles POST /api/kits/{code}/maintenance/close.
func (h *KitsHandler) CloseMaintenance(w http.ResponseWriter, r *http.Request) {
	h.maintenance(w, r, h.Custody.CloseMaintenance)
}

func (h *KitsHandler) maintenance(w http.ResponseWriter, r *http.Request,
	op func(context.Context, model.Actor, custody.MaintenanceInput) (*custody.MaintenanceResult, error)) {
	var req maintenanceRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	res, err := op(r.Context(), actor, custody.MaintenanceInput{
		KitCode:       r.PathValue("code"),
		Notes:         req.Notes,
		PartsReplaced: req.PartsReplaced,
		RoundCount:    req.RoundCount,
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, res)
}
