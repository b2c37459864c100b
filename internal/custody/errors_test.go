package custody

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"guard failure names the specific error", guardFailure(ErrKitNotAvailable, model.KitStatusCheckedOut, model.EventCheckoutOnPrem), "KitNotAvailable"},
		{"no longer available", guardFailure(ErrKitNoLongerAvailable, model.KitStatusLost, model.EventCheckoutOffsite), "KitNoLongerAvailable"},
		{"bare transition error", &model.TransitionError{From: model.KitStatusLost, Event: model.EventCheckin}, "InvalidStateTransition"},
		{"wrapped sentinel", fmt.Errorf("deciding request 7: %w", ErrRequestNotPending), "RequestNotPending"},
		{"duplicate request", ErrDuplicatePendingRequest, "DuplicatePendingRequest"},
		{"not authorized", ErrNotAuthorized, "NotAuthorized"},
		{"validation", invalid("kit_code", "is required"), "ValidationFailed"},
		{"rejected ledger record", &store.InvalidEventError{Field: "custodian", Reason: "is required"}, "ValidationFailed"},
		{"immutable ledger", fmt.Errorf("updating: %w", store.ErrLedgerImmutable), "Internal"},
		{"unknown", errors.New("disk full"), "Internal"},
		{"nil", nil, "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestEveryDomainErrorHasCode(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range errorCodes {
		assert.Equal(t, c.code, CodeOf(c.err))
		assert.False(t, seen[c.code], "duplicate code %s", c.code)
		seen[c.code] = true
	}
}
