package worker

import (
	"github.com/spec-kit/dispatch-service/internal/service"
)

// StartNotificationWorker wires the notification service into the event
// stream.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
