package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/service"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// IncidentsHandler manages incident intake and lifecycle endpoints.
type IncidentsHandler struct {
	coordinator *service.Coordinator
	incidents   *service.IncidentService
	dispatch    *service.DispatchService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(coordinator *service.Coordinator, incidents *service.IncidentService, dispatch *service.DispatchService) *IncidentsHandler {
	return &IncidentsHandler{coordinator: coordinator, incidents: incidents, dispatch: dispatch}
}

// SubmitReport POST /incidents.
func (h *IncidentsHandler) SubmitReport(c *fiber.Ctx) error {
	var req dto.SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.ReportInput{
		Description:   req.Description,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Address:       req.Address,
		Hints:         req.Hints,
		CallerContact: req.CallerContact,
	}
	incident, err := h.coordinator.Submit(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": incidentSummary(incident)})
}

// ListIncidents GET /incidents.
func (h *IncidentsHandler) ListIncidents(c *fiber.Ctx) error {
	filter := parseIncidentQuery(c)
	incidents, err := h.incidents.ListIncidents(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.IncidentSummary, 0, len(incidents))
	for i := range incidents {
		items = append(items, incidentSummary(&incidents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetIncident GET /incidents/:id.
func (h *IncidentsHandler) GetIncident(c *fiber.Ctx) error {
	detail, err := h.incidents.GetDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	history, err := h.incidents.ListHistory(c.UserContext(), detail.Incident.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentDetail(detail, history)})
}

// GetAllocation GET /incidents/:id/allocation.
func (h *IncidentsHandler) GetAllocation(c *fiber.Ctx) error {
	detail, err := h.incidents.GetDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if detail.Allocation == nil {
		return apperrors.NewNotFound("active allocation", nil)
	}
	return c.JSON(fiber.Map{"data": allocationResponse(detail.Allocation)})
}

// Reprioritize POST /incidents/:id/reprioritize.
func (h *IncidentsHandler) Reprioritize(c *fiber.Ctx) error {
	var req dto.ReprioritizeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	incident, err := h.coordinator.Reprioritize(c.UserContext(), c.Params("id"), req.Severity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentSummary(incident)})
}

// Resolve POST /incidents/:id/resolve.
func (h *IncidentsHandler) Resolve(c *fiber.Ctx) error {
	incident, err := h.dispatch.Resolve(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentSummary(incident)})
}

// Cancel POST /incidents/:id/cancel.
func (h *IncidentsHandler) Cancel(c *fiber.Ctx) error {
	incident, err := h.dispatch.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentSummary(incident)})
}

func parseIncidentQuery(c *fiber.Ctx) repository.IncidentFilter {
	filter := repository.IncidentFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.IncidentStatus(strings.TrimSpace(part)))
		}
	}
	if categoryStr := c.Query("category"); categoryStr != "" {
		for _, part := range strings.Split(categoryStr, ",") {
			filter.Categories = append(filter.Categories, domain.IncidentCategory(strings.TrimSpace(part)))
		}
	}
	if min := parseSeverity(c.Query("min_severity")); min != nil {
		filter.MinSeverity = min
	}
	if max := parseSeverity(c.Query("max_severity")); max != nil {
		filter.MaxSeverity = max
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseSeverity(val string) *int {
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < domain.MinSeverity || parsed > domain.MaxSeverity {
		return nil
	}
	return &parsed
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func incidentSummary(incident *domain.Incident) dto.IncidentSummary {
	return dto.IncidentSummary{
		ID:          incident.ID,
		ExternalKey: incident.ExternalKey,
		Category:    incident.Category,
		Severity:    incident.Severity,
		Band:        incident.Band(),
		Status:      incident.Status,
		Confidence:  incident.Confidence,
		Degraded:    incident.Degraded,
		Location:    locationResponse(incident.Location),
		CreatedAt:   incident.CreatedAt,
		UpdatedAt:   incident.UpdatedAt,
	}
}

func incidentDetail(detail *service.IncidentDetail, history []domain.IncidentHistory) dto.IncidentDetailResponse {
	incident := detail.Incident
	resp := dto.IncidentDetailResponse{
		ID:            incident.ID,
		ExternalKey:   incident.ExternalKey,
		Category:      incident.Category,
		Severity:      incident.Severity,
		Band:          incident.Band(),
		Status:        incident.Status,
		Confidence:    incident.Confidence,
		Degraded:      incident.Degraded,
		Description:   incident.Description,
		Indicators:    incident.Indicators,
		Location:      locationResponse(incident.Location),
		CallerContact: incident.CallerContact,
		CreatedAt:     incident.CreatedAt,
		UpdatedAt:     incident.UpdatedAt,
		QueuedAt:      incident.QueuedAt,
		DispatchedAt:  incident.DispatchedAt,
		ClosedAt:      incident.ClosedAt,
		History:       historyResponses(history),
	}
	if detail.Allocation != nil {
		allocation := allocationResponse(detail.Allocation)
		resp.Allocation = &allocation
	}
	if detail.Dispatch != nil {
		dispatch := dispatchResponse(detail.Dispatch)
		resp.Dispatch = &dispatch
	}
	resp.HeldUnits = make([]dto.UnitResponse, 0, len(detail.HeldUnits))
	for i := range detail.HeldUnits {
		resp.HeldUnits = append(resp.HeldUnits, unitResponse(&detail.HeldUnits[i]))
	}
	return resp
}

func locationResponse(location domain.Location) dto.LocationResponse {
	return dto.LocationResponse{
		Latitude:  location.Latitude,
		Longitude: location.Longitude,
		Address:   location.Address,
	}
}

func allocationResponse(allocation *domain.Allocation) dto.AllocationResponse {
	assignments := make([]dto.AssignmentResponse, 0, len(allocation.Assignments))
	for _, assignment := range allocation.Assignments {
		assignments = append(assignments, dto.AssignmentResponse{
			UnitID:            assignment.UnitID,
			CallSign:          assignment.CallSign,
			UnitType:          assignment.UnitType,
			DistanceMeters:    assignment.DistanceMeters,
			TravelTimeSeconds: int64(assignment.TravelTime.Seconds()),
		})
	}
	return dto.AllocationResponse{
		ID:               allocation.ID,
		RequiredCapacity: allocation.RequiredCapacity,
		AssignedCapacity: allocation.AssignedCapacity,
		Deficit:          allocation.Deficit,
		Partial:          allocation.Partial,
		PersonnelCount:   allocation.PersonnelCount,
		EstimatedCost:    allocation.EstimatedCost,
		Assignments:      assignments,
		CreatedAt:        allocation.CreatedAt,
		ReleasedAt:       allocation.ReleasedAt,
	}
}

func dispatchResponse(ticket *domain.DispatchTicket) dto.DispatchResponse {
	instructions := make([]dto.InstructionResponse, 0, len(ticket.Instructions))
	for _, instruction := range ticket.Instructions {
		instructions = append(instructions, dto.InstructionResponse{
			UnitID:   instruction.UnitID,
			CallSign: instruction.CallSign,
			Text:     instruction.Text,
		})
	}
	return dto.DispatchResponse{
		ID:           ticket.ID,
		ExternalKey:  ticket.ExternalKey,
		AllocationID: ticket.AllocationID,
		Instructions: instructions,
		DispatchedAt: ticket.DispatchedAt,
	}
}

func historyResponses(entries []domain.IncidentHistory) []dto.IncidentHistoryResponse {
	resp := make([]dto.IncidentHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.IncidentHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			Actor:      entry.Actor,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return resp
}
