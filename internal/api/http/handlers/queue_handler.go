package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/service"
)

// QueueHandler exposes the triage queue and pipeline counters.
type QueueHandler struct {
	coordinator *service.Coordinator
	metrics     *observability.Metrics
}

// NewQueueHandler constructs handler.
func NewQueueHandler(coordinator *service.Coordinator, metrics *observability.Metrics) *QueueHandler {
	return &QueueHandler{coordinator: coordinator, metrics: metrics}
}

// GetQueue GET /queue.
func (h *QueueHandler) GetQueue(c *fiber.Ctx) error {
	now := time.Now().UTC()
	entries := h.coordinator.QueueSnapshot()
	items := make([]dto.QueueEntryResponse, 0, len(entries))
	for i, entry := range entries {
		items = append(items, dto.QueueEntryResponse{
			Position:       i + 1,
			IncidentID:     entry.IncidentID,
			Severity:       entry.Severity,
			Band:           domain.BandForSeverity(entry.Severity),
			EnqueuedAt:     entry.EnqueuedAt,
			WaitingSeconds: int64(now.Sub(entry.EnqueuedAt).Seconds()),
		})
	}
	return c.JSON(fiber.Map{"data": items, "depth": len(items)})
}

// GetStats GET /stats.
func (h *QueueHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
