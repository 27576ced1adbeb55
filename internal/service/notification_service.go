package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/events"
)

// NotificationService mirrors incident lifecycle events onto the operations
// log and, when Redis is reachable, a pub/sub stream that dashboards and
// field terminals subscribe to. Delivery is best effort.
type NotificationService struct {
	dispatcher events.Dispatcher
	redis      *redis.Client
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil redis client disables the
// stream and keeps log-only delivery.
func NewNotificationService(dispatcher events.Dispatcher, redisClient *redis.Client, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		redis:      redisClient,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to the lifecycle events worth broadcasting.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIncidentReceived, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventIncidentQueued, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventIncidentReprioritized, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventIncidentAllocated, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventIncidentDispatched, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventIncidentResolved, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventIncidentCancelled, n.handleLifecycleEvent)
	n.dispatcher.Subscribe(events.EventUnitStatusChanged, n.handleUnitStatusChanged)
}

func (n *NotificationService) handleLifecycleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("incident_id", event.IncidentID),
		zap.String("actor", event.Actor),
		zap.Any("payload", event.Payload))
	n.broadcast(ctx, n.incidentChannel(), event)
	return nil
}

func (n *NotificationService) handleUnitStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("incident_id", event.IncidentID),
		zap.Any("payload", event.Payload))
	n.broadcast(ctx, n.unitChannel(), event)
	return nil
}

// broadcast publishes the event onto the stream. Failures are logged and
// swallowed; the coordination path never waits on subscribers.
func (n *NotificationService) broadcast(ctx context.Context, channel string, event events.Event) {
	if n.redis == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("failed to encode event", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	if err := n.redis.Publish(ctx, channel, body).Err(); err != nil {
		n.logger.Warn("failed to publish event",
			zap.String("channel", channel),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (n *NotificationService) incidentChannel() string {
	return fmt.Sprintf("%s:incidents", n.cfg.ChannelPrefix)
}

func (n *NotificationService) unitChannel() string {
	return fmt.Sprintf("%s:units", n.cfg.ChannelPrefix)
}
