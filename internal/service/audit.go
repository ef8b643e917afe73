package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/notify"
)

// outcomeSink bundles the optional audit log and notifier every service
// reports terminal outcomes to. Both may be nil.
type outcomeSink struct {
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

func (s outcomeSink) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s outcomeSink) notify(ctx context.Context, event, title string, fields map[string]string) {
	if err := s.notifier.Notify(ctx, event, title, fields); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
