package handler

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openedu-labs/qfeed-api/internal/dto"
	"github.com/openedu-labs/qfeed-api/internal/service"
	"github.com/openedu-labs/qfeed-api/internal/utils"
)

// FeedbackHandler manages block feedback computation endpoints.
type FeedbackHandler struct {
	service   service.FeedbackService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewFeedbackHandler builds a feedback handler instance.
func NewFeedbackHandler(service service.FeedbackService, validator *validator.Validate, logger zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "feedback_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *FeedbackHandler) Register(router fiber.Router) {
	router.Post("/:id/feedback", h.compute)
}

func (h *FeedbackHandler) compute(c *fiber.Ctx) error {
	blockID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload, files, err := parseFeedbackRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	feedback, err := h.service.ComputeBlockFeedback(c.Context(), blockID, requesterFrom(c), payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "feedback computed", feedback)
}

// parseFeedbackRequest accepts either a JSON body or, for file-upload
// blocks, a multipart form carrying the files alongside the answer fields.
func parseFeedbackRequest(c *fiber.Ctx) (dto.FeedbackRequest, []*multipart.FileHeader, error) {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	if !strings.Contains(contentType, "multipart/form-data") {
		var payload dto.FeedbackRequest
		if err := c.BodyParser(&payload); err != nil {
			return dto.FeedbackRequest{}, nil, errors.New("invalid request body")
		}
		return payload, nil, nil
	}

	submissionID, err := parseFormUint(c, "submission_id")
	if err != nil {
		return dto.FeedbackRequest{}, nil, err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return dto.FeedbackRequest{}, nil, errors.New("invalid multipart form")
	}

	payload := dto.FeedbackRequest{
		SubmissionID: *submissionID,
		Comment:      c.FormValue("comment"),
	}
	// One form field per answer value; values may themselves contain commas.
	for _, value := range form.Value["values"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		payload.Values = append(payload.Values, value)
	}

	return payload, form.File["files"], nil
}

func (h *FeedbackHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrBlockNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "block not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "submission belongs to another student")
	case errors.Is(err, service.ErrUnsupportedFileType):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("feedback computation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "feedback computation failed")
	}
}
