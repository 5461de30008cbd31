package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/service"
	"github.com/noah-isme/siswa-progress-api/internal/utils"
)

// ProgressHandler exposes aggregated progress, the incomplete report, the
// mark-complete mutation and the teacher waiting queue.
type ProgressHandler struct {
	progress   service.ProgressService
	incomplete service.IncompleteService
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewProgressHandler creates a new handler instance.
func NewProgressHandler(progress service.ProgressService, incomplete service.IncompleteService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress:   progress,
		incomplete: incomplete,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register attaches the progress endpoints.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Get("/students/:id/progress", h.getProgress)
	router.Get("/students/:id/incomplete", h.getIncomplete)
	router.Post("/periods/:id/complete", h.markComplete)
}

// RegisterTeacher attaches the staff-only endpoints.
func (h *ProgressHandler) RegisterTeacher(router fiber.Router) {
	router.Get("/waiting", h.listWaiting)
}

func (h *ProgressHandler) getProgress(c *fiber.Ctx) error {
	query, err := h.progressQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if !canActFor(c, query.StudentID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	response, err := h.progress.GetStudentProgress(requestContext(c), query)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", query.StudentID).Msg("failed to aggregate progress")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to aggregate progress")
	}

	return utils.SendSuccess(c, "progress aggregated", response)
}

func (h *ProgressHandler) getIncomplete(c *fiber.Ctx) error {
	query, err := h.progressQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if !canActFor(c, query.StudentID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	classification, err := h.incomplete.GetIncomplete(requestContext(c), query)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", query.StudentID).Msg("failed to classify incomplete periods")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to classify incomplete periods")
	}

	return utils.SendSuccess(c, "incomplete periods classified", classification)
}

func (h *ProgressHandler) markComplete(c *fiber.Ctx) error {
	progressID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.MarkCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.SendValidationError(c, err)
	}
	if strings.TrimSpace(req.SubmittedAt) != "" && utils.ParseServerTime(req.SubmittedAt) == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submitted_at")
	}

	record, err := h.progress.MarkComplete(requestContext(c), progressID, req)
	if err != nil {
		if errors.Is(err, service.ErrPeriodNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "period not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("progress_id", progressID).Msg("failed to mark period complete")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to mark period complete")
	}

	return utils.SendSuccess(c, "period marked complete", record)
}

func (h *ProgressHandler) listWaiting(c *fiber.Ctx) error {
	teacherID := userIDFromContext(c)
	if teacherID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	waiting, err := h.progress.ListWaitingForTeacher(requestContext(c), teacherID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("teacher_id", teacherID).Msg("failed to list waiting periods")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list waiting periods")
	}

	return utils.SendSuccess(c, "waiting periods", waiting)
}

func (h *ProgressHandler) progressQuery(c *fiber.Ctx) (dto.ProgressQuery, error) {
	studentID, err := parseUintParam(c, "id")
	if err != nil {
		return dto.ProgressQuery{}, err
	}
	subjectID, err := parseQueryUint(c, "subject_id")
	if err != nil {
		return dto.ProgressQuery{}, err
	}
	from, err := parseQueryDate(c, "from")
	if err != nil {
		return dto.ProgressQuery{}, err
	}
	to, err := parseQueryDate(c, "to")
	if err != nil {
		return dto.ProgressQuery{}, err
	}

	query := dto.ProgressQuery{
		StudentID: studentID,
		SubjectID: subjectID,
		From:      from,
		To:        to,
	}
	if err := h.validate.Struct(query); err != nil {
		return dto.ProgressQuery{}, err
	}

	return query, nil
}
