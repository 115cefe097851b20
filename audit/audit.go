// Package audit provides review.AuditSink implementations.
package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink writes every audit event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink on logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, e review.AuditEvent) error {
	s.logger.InfoContext(ctx, "audit",
		"event_id", e.ID,
		"type", string(e.Type),
		"entity_id", e.EntityID,
		"user_id", e.UserID,
		"occurred_at", e.OccurredAt,
		"source", e.Source,
		"payload", e.Payload,
	)
	return nil
}

// =============================================================================
// FAN-OUT
// =============================================================================

// FanOut publishes to every sink and queries the first one that can be queried.
type FanOut struct {
	sinks []review.AuditSink
}

// NewFanOut combines sinks. Nil sinks are skipped.
func NewFanOut(sinks ...review.AuditSink) *FanOut {
	f := &FanOut{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish delivers to every sink; one failing sink does not stop the others.
func (f *FanOut) Publish(ctx context.Context, e review.AuditEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrNotQueryable is returned by Query when no sink keeps history.
var ErrNotQueryable = errors.New("audit: no queryable sink configured")

func (f *FanOut) Query(ctx context.Context, filter review.AuditFilter) ([]review.AuditEvent, error) {
	for _, s := range f.sinks {
		if log, ok := s.(review.AuditLog); ok {
			return log.Query(ctx, filter)
		}
	}
	return nil, ErrNotQueryable
}

var _ review.AuditLog = (*FanOut)(nil)
