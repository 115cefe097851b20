/*
Package notify delivers woodland officer review notifications.

PURPOSE:
  The review engine only depends on review.Notifier. This package provides
  the transport used by the service: a structured-log sender that records
  each notification as one log line. A mail or queue transport slots in
  behind the same interface.
*/
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/forestry/woodland-review/review"
)

// LogSender writes each notification to a structured logger.
type LogSender struct {
	logger *slog.Logger
	from   string
}

// NewLogSender creates a sender. from is recorded as the sender address.
func NewLogSender(logger *slog.Logger, from string) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, from: from}
}

// SendNotification renders the subject and logs the notification.
func (s *LogSender) SendNotification(ctx context.Context, model any, notificationType review.NotificationType, recipient review.Recipient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(recipient.Email) == "" {
		return fmt.Errorf("%w: recipient %s has no email address", review.ErrNotification, recipient.UserID)
	}
	s.logger.InfoContext(ctx, "notification sent",
		"type", string(notificationType),
		"from", s.from,
		"to", recipient.Email,
		"recipient_id", recipient.UserID,
		"subject", Subject(model, notificationType),
	)
	return nil
}

// Subject renders a one-line subject for a notification.
func Subject(model any, notificationType review.NotificationType) string {
	m, ok := model.(review.ReviewCompletionModel)
	if !ok {
		return string(notificationType)
	}
	switch notificationType {
	case review.NotifyFieldManagerOfReviewCompletion:
		return fmt.Sprintf("Woodland officer review complete: %s (%s)", m.ApplicationReference, m.PropertyName)
	case review.NotifyApplicantOfReviewCompletion:
		return fmt.Sprintf("Your application %s has completed woodland officer review", m.ApplicationReference)
	}
	return string(notificationType)
}
