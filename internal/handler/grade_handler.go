package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openedu-labs/qfeed-api/internal/service"
	"github.com/openedu-labs/qfeed-api/internal/utils"
)

// GradeHandler manages score aggregation and grade resolution endpoints.
type GradeHandler struct {
	service service.GradeService
	logger  zerolog.Logger
}

// NewGradeHandler builds a grade handler instance.
func NewGradeHandler(service service.GradeService, logger zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		service: service,
		logger:  logger.With().Str("component", "grade_handler").Logger(),
	}
}

// Register attaches the submission-scoped routes to the provided router group.
func (h *GradeHandler) Register(router fiber.Router) {
	router.Post("/:id/score", h.computeScore)
	router.Post("/:id/grade", h.computeGrade)
}

// RegisterAdmin attaches the assignment-scoped bulk recalculation route.
func (h *GradeHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/:id/recalculate", h.recalculate)
}

func (h *GradeHandler) computeScore(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	score, err := h.service.ComputeAssignmentScore(c.Context(), id, requesterFrom(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "score computed", score)
}

func (h *GradeHandler) computeGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	grade, err := h.service.ComputeAssignmentGrade(c.Context(), id, requesterFrom(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grade computed", grade)
}

func (h *GradeHandler) recalculate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.RecalculateAssignment(c.Context(), id, requesterFrom(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment recalculated", summary)
}

func (h *GradeHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "requester may not act on this submission")
	case errors.Is(err, service.ErrGradeUnresolved):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "grading scheme returned no result")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("grade computation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "grade computation failed")
	}
}
