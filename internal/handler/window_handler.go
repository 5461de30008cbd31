package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/observability"
	"github.com/noah-isme/siswa-progress-api/internal/service"
	"github.com/noah-isme/siswa-progress-api/internal/utils"
)

// WindowHandler exposes window state, live countdown streams and access
// checks for assessment windows.
type WindowHandler struct {
	windows   service.WindowService
	countdown *service.CountdownService
	logger    zerolog.Logger
}

// NewWindowHandler creates a new handler instance.
func NewWindowHandler(windows service.WindowService, countdown *service.CountdownService, logger zerolog.Logger) *WindowHandler {
	return &WindowHandler{
		windows:   windows,
		countdown: countdown,
		logger:    logger.With().Str("component", "window_handler").Logger(),
	}
}

// Register attaches the window endpoints.
func (h *WindowHandler) Register(router fiber.Router) {
	router.Get("/periods/:id/window", h.getWindow)
	router.Get("/periods/:id/window/stream", h.stream)
	router.Get("/assessments/:assessmentID/access", h.checkAccess)
}

func (h *WindowHandler) getWindow(c *fiber.Ctx) error {
	progressID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.windows.GetWindowState(requestContext(c), progressID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, service.ErrPeriodNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "period not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("progress_id", progressID).Msg("failed to load window state")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load window state")
	}

	if !canActFor(c, response.StudentID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	return utils.SendSuccess(c, "window state", response)
}

func (h *WindowHandler) checkAccess(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "assessmentID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	result, err := h.windows.CheckAccess(requestContext(c), assessmentID, studentID, time.Now().UTC())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("assessment_id", assessmentID).Msg("access check failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "access check failed")
	}

	return utils.SendSuccess(c, "access evaluated", result)
}

// stream pushes live window snapshots over SSE. The first frame arrives after
// the watcher's initial authority fetch; subsequent frames follow the display
// tick until the client disconnects.
func (h *WindowHandler) stream(c *fiber.Ctx) error {
	progressID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	// Resolve the period's owner before subscribing so a student cannot
	// watch another student's countdown.
	current, err := h.windows.GetWindowState(requestContext(c), progressID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, service.ErrPeriodNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "period not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("progress_id", progressID).Msg("failed to resolve stream target")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to open stream")
	}
	if !canActFor(c, current.StudentID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	snapshots, cleanup := h.countdown.Subscribe(progressID)

	observability.StreamSubscribers().Inc()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
			observability.StreamSubscribers().Dec()
		}()

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		for {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					return
				}
				if err := writeSnapshotEvent(w, snapshot); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write window snapshot")
					return
				}
			case <-keepAlive.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeSnapshotEvent(w *bufio.Writer, snapshot dto.WindowSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: window\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
