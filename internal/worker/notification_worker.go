// Package worker wires background subscribers at startup.
package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/service"
)

// StartNotificationWorker builds the notification service and subscribes it
// to every ticket event on dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *service.NotificationService {
	if dispatcher == nil {
		return nil
	}
	notifications := service.NewNotificationService(dispatcher, logger.Named("notifications"), metrics)
	notifications.RegisterHandlers()
	logger.Info("notification worker started", zap.Int("event_types", len(events.EventTypes)))
	return notifications
}
