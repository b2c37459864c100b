package custody

import (
	"errors"
	"fmt"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// Domain errors. Guard failures also wrap model.ErrInvalidTransition.
var (
	ErrKitNotFound             = errors.New("kit not found")
	ErrKitNotAvailable         = errors.New("kit is not available")
	ErrKitNotCheckedOut        = errors.New("kit is not checked out")
	ErrKitNotInMaintenance     = errors.New("kit is not in maintenance")
	ErrInvalidStateForReport   = errors.New("kit cannot be reported in its current state")
	ErrInvalidStateTransition  = model.ErrInvalidTransition
	ErrNotVerifiedAdult        = errors.New("actor is not a verified adult")
	ErrNotAuthorized           = errors.New("actor is not authorized")
	ErrDuplicatePendingRequest = errors.New("kit already has a pending off-site request")
	ErrAttestationIncomplete   = errors.New("attestation must be accepted and signed")
	ErrRequestNotFound         = errors.New("approval request not found")
	ErrRequestNotPending       = errors.New("approval request is not pending")
	ErrDenialReasonRequired    = errors.New("denial reason is required")
	ErrKitNoLongerAvailable    = errors.New("kit is no longer available")
	ErrDuplicateKitCode        = errors.New("kit code already registered")
	ErrSerialUnavailable       = errors.New("serial sealing is not configured")
)

// ValidationError reports malformed input. Nothing has been written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// guardFailure builds the error for a rejected state machine transition.
func guardFailure(specific error, from model.KitStatus, ev model.EventType) error {
	return fmt.Errorf("%w: %w", specific, &model.TransitionError{From: from, Event: ev})
}

// Kind classifies an error for callers that map errors to responses.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	}
	return "internal"
}

// KindOf returns the kind of err. Unknown errors are internal.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		badEvent   *store.InvalidEventError
	)
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, store.ErrLedgerImmutable):
		return KindInternal
	case errors.As(err, &validation), errors.As(err, &badEvent),
		errors.Is(err, ErrAttestationIncomplete), errors.Is(err, ErrDenialReasonRequired),
		errors.Is(err, ErrSerialUnavailable):
		return KindValidation
	case errors.Is(err, ErrKitNotFound), errors.Is(err, ErrRequestNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNotVerifiedAdult):
		return KindForbidden
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, ErrDuplicatePendingRequest),
		errors.Is(err, ErrRequestNotPending), errors.Is(err, ErrKitNoLongerAvailable),
		errors.Is(err, ErrDuplicateKitCode):
		return KindConflict
	}
	return KindInternal
}

// errorCodes names each domain error for clients. Specific errors precede
// ErrInvalidStateTransition, which guard failures also wrap.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrKitNotFound, "KitNotFound"},
	{ErrKitNotAvailable, "KitNotAvailable"},
	{ErrKitNotCheckedOut, "KitNotCheckedOut"},
	{ErrKitNotInMaintenance, "KitNotInMaintenance"},
	{ErrInvalidStateForReport, "InvalidStateForReport"},
	{ErrNotVerifiedAdult, "NotVerifiedAdult"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrDuplicatePendingRequest, "DuplicatePendingRequest"},
	{ErrAttestationIncomplete, "AttestationIncomplete"},
	{ErrRequestNotFound, "RequestNotFound"},
	{ErrRequestNotPending, "RequestNotPending"},
	{ErrDenialReasonRequired, "DenialReasonRequired"},
	{ErrKitNoLongerAvailable, "KitNoLongerAvailable"},
	{ErrDuplicateKitCode, "DuplicateKitCode"},
	{ErrSerialUnavailable, "SerialUnavailable"},
	{ErrInvalidStateTransition, "InvalidStateTransition"},
}

// CodeOf returns a stable name for err. It does not change when messages do.
func CodeOf(err error) string {
	if err == nil || errors.Is(err, store.ErrLedgerImmutable) {
		return "Internal"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	var (
		validation *ValidationError
		badEvent   *store.InvalidEventError
	)
	if errors.As(err, &validation) || errors.As(err, &badEvent) {
		return "ValidationFailed"
	}
	return "Internal"
}
