package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/store"
)

// RegisterKitInput describes a new kit. Serial is sealed before it is stored.
type RegisterKitInput struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Serial      string `json:"serial"`
}

// RegisterKit adds a kit in status available.
func (s *Service) RegisterKit(ctx context.Context, actor model.Actor, in RegisterKitInput) (kit *model.Kit, err error) {
	ctx, span := s.startSpan(ctx, "custody.register_kit", actor, attribute.String("kit.code", in.Code))
	defer func() { s.endSpan(span, "register_kit", err) }()

	if err := s.require(s.Policy.CanManageKits(actor)); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(in.Code)
	name := strings.TrimSpace(in.Name)
	if code == "" {
		return nil, invalid("code", "is required")
	}
	if name == "" {
		return nil, invalid("name", "is required")
	}

	var sealed []byte
	if in.Serial != "" {
		if s.Serial == nil {
			return nil, ErrSerialUnavailable
		}
		sealed, err = s.Serial.Seal(in.Serial)
		if err != nil {
			return nil, fmt.Errorf("sealing serial: %w", err)
		}
	}

	kit, err = store.CreateKit(ctx, s.DB, code, name, strings.TrimSpace(in.Description), sealed, s.now())
	if errors.Is(err, store.ErrDuplicateCode) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKitCode, code)
	}
	if err != nil {
		return nil, err
	}

	s.Logger.Info("kit registered", "user", actor.Name, "kit", kit.Code)
	return kit, nil
}

// GetKit returns the kit with the given code.
func (s *Service) GetKit(ctx context.Context, code string) (*model.Kit, error) {
	kit, err := store.GetKitByCode(ctx, s.DB, code)
	if err != nil {
		return nil, err
	}
	if kit == nil {
		return nil, ErrKitNotFound
	}
	return kit, nil
}

// ListKits returns kits, optionally filtered by status.
func (s *Service) ListKits(ctx context.Context, status model.KitStatus) ([]model.Kit, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("%q is not a kit status", status))
	}
	return store.ListKits(ctx, s.DB, status)
}

// RevealSerial opens a kit's sealed serial number. It returns "" if none was recorded.
func (s *Service) RevealSerial(ctx context.Context, actor model.Actor, code string) (string, error) {
	if err := s.require(s.Policy.CanManageKits(actor)); err != nil {
		return "", err
	}
	kit, err := s.GetKit(ctx, code)
	if err != nil {
		return "", err
	}
	if len(kit.SerialSealed) == 0 {
		return "", nil
	}
	if s.Serial == nil {
		return "", ErrSerialUnavailable
	}
	return s.Serial.Open(kit.SerialSealed)
}
