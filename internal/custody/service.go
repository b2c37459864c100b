// Package custody implements the kit custody engine: the kit state machine,
// the append-only ledger discipline, the off-site approval workflow and the
// soft warning calculator.
package custody

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/serial"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Logger is the subset of *slog.Logger the service writes to.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AttestationConfig is the legal text snapshotted into every off-site request.
type AttestationConfig struct {
	Text    string
	Version string
}

// DefaultAttestationText is used when no text is configured.
const DefaultAttestationText = "I accept full legal responsibility for the safe transport, storage " +
	"and return of this equipment while it is off the premises."

// Service runs custody operations. Each state-changing call is one transaction.
type Service struct {
	DB          *sql.DB
	Clock       Clock
	Policy      model.Policy
	Logger      Logger
	Attestation AttestationConfig
	Warnings    WarningConfig
	Serial      serial.Cipher

	tracer trace.Tracer
}

// NewService returns a Service with default collaborators.
func NewService(db *sql.DB) *Service {
	return &Service{
		DB:          db,
		Clock:       RealClock{},
		Policy:      model.RolePolicy{},
		Logger:      slog.Default(),
		Attestation: AttestationConfig{Text: DefaultAttestationText, Version: "1"},
		Warnings:    DefaultWarningConfig(),
		tracer:      otel.Tracer("orozarna/custody"),
	}
}

// now returns the current time at the precision the store keeps.
func (s *Service) now() time.Time {
	return s.Clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *Service) startSpan(ctx context.Context, name string, actor model.Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("actor.id", actor.ID), attribute.String("actor.role", string(actor.Role)))
	return s.spanTracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) spanTracer() trace.Tracer {
	if s.tracer == nil {
		return otel.Tracer("orozarna/custody")
	}
	return s.tracer
}

// endSpan records the outcome of an operation on its span and in the log.
func (s *Service) endSpan(span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch KindOf(err) {
	case KindInternal:
		s.Logger.Error("custody operation failed", "op", op, "error", err)
	default:
		s.Logger.Warn("custody operation rejected", "op", op, "error", err)
	}
}

// inTx runs fn inside a write transaction. The database is opened with
// _txlock=immediate so the transaction holds the write lock from BEGIN and a
// guard read cannot go stale before commit.
func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Service) require(ok bool) error {
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// dateOnly normalizes a calendar date to midnight UTC, as stored.
func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
