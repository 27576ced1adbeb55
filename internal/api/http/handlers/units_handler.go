package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/dispatch-service/internal/api/dto"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/service"
	apperrors "github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// UnitsHandler manages fleet endpoints.
type UnitsHandler struct {
	dispatch *service.DispatchService
}

// NewUnitsHandler constructs handler.
func NewUnitsHandler(dispatch *service.DispatchService) *UnitsHandler {
	return &UnitsHandler{dispatch: dispatch}
}

// RegisterUnit POST /units.
func (h *UnitsHandler) RegisterUnit(c *fiber.Ctx) error {
	var req dto.RegisterUnitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.UnitInput{
		CallSign:  req.CallSign,
		Type:      req.Type,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Address:   req.Address,
		Capacity:  req.Capacity,
	}
	unit, err := h.dispatch.RegisterUnit(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": unitResponse(unit)})
}

// ListUnits GET /units.
func (h *UnitsHandler) ListUnits(c *fiber.Ctx) error {
	units := h.dispatch.ListUnits(c.UserContext())
	items := make([]dto.UnitResponse, 0, len(units))
	for i := range units {
		items = append(items, unitResponse(&units[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetUnit GET /units/:id.
func (h *UnitsHandler) GetUnit(c *fiber.Ctx) error {
	unit, err := h.dispatch.GetUnit(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": unitResponse(unit)})
}

// UpdateStatus POST /units/:id/status.
func (h *UnitsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UnitStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	unit, err := h.dispatch.UpdateUnitStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": unitResponse(unit)})
}

// Reinstate POST /units/:id/reinstate.
func (h *UnitsHandler) Reinstate(c *fiber.Ctx) error {
	unit, err := h.dispatch.ReinstateUnit(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": unitResponse(unit)})
}

func unitResponse(unit *domain.ResourceUnit) dto.UnitResponse {
	return dto.UnitResponse{
		ID:       unit.ID,
		CallSign: unit.CallSign,
		Type:     unit.Type,
		Location: dto.LocationResponse{
			Latitude:  unit.Location.Latitude,
			Longitude: unit.Location.Longitude,
			Address:   unit.Location.Address,
		},
		Readiness:        unit.Readiness,
		Capacity:         unit.Capacity,
		ActiveIncidentID: unit.ActiveIncidentID,
		CreatedAt:        unit.CreatedAt,
		UpdatedAt:        unit.UpdatedAt,
	}
}
