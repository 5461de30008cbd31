package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/handler"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/service"
)

type stubWindowService struct {
	window       dto.WindowStateResponse
	access       dto.AccessCheckResult
	err          error
	lastProgress uint
	lastStudent  uint
}

func (s *stubWindowService) GetWindowState(_ context.Context, progressID uint, _ time.Time) (dto.WindowStateResponse, error) {
	s.lastProgress = progressID
	return s.window, s.err
}

func (s *stubWindowService) CheckAccess(_ context.Context, _ uint, studentID uint, _ time.Time) (dto.AccessCheckResult, error) {
	s.lastStudent = studentID
	return s.access, s.err
}

type openPeriodSource struct{}

func (openPeriodSource) GetByID(_ context.Context, progressID uint) (models.PeriodRecord, error) {
	now := time.Now().UTC()
	assessmentID := uint(11)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	return models.PeriodRecord{
		ProgressID:            progressID,
		StudentID:             7,
		Status:                models.PeriodStatusInProgress,
		AssessmentID:          &assessmentID,
		AssessmentWindowStart: &start,
		AssessmentWindowEnd:   &end,
	}, nil
}

func windowTestApp(windows service.WindowService) *fiber.App {
	return windowTestAppAs(windows, 7, "student")
}

func windowTestAppAs(windows service.WindowService, userID uint, role string) *fiber.App {
	countdown := service.NewCountdownService(openPeriodSource{}, 30*time.Second, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	})
	handler.NewWindowHandler(windows, countdown, zerolog.Nop()).Register(group)
	return app
}

func TestWindowHandler_GetWindow(t *testing.T) {
	svc := &stubWindowService{
		window: dto.WindowStateResponse{
			ProgressID: 4,
			StudentID:  7,
			State:      dto.WindowState{Status: dto.WindowOpen, SecondsRemaining: 1800},
			Countdown:  "0h 30m 00s",
		},
	}
	app := windowTestApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/periods/4/window", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.WindowStateResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.Equal(t, dto.WindowOpen, payload.Data.State.Status)
	require.Equal(t, uint(4), svc.lastProgress)
}

func TestWindowHandler_GetWindowNotFound(t *testing.T) {
	app := windowTestApp(&stubWindowService{err: service.ErrPeriodNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/periods/99/window", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWindowHandler_GetWindowBadID(t *testing.T) {
	app := windowTestApp(&stubWindowService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/periods/abc/window", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWindowHandler_GetWindowForbiddenForOtherStudent(t *testing.T) {
	svc := &stubWindowService{
		window: dto.WindowStateResponse{
			ProgressID: 4,
			StudentID:  8,
			State:      dto.WindowState{Status: dto.WindowOpen, SecondsRemaining: 1800},
		},
	}
	app := windowTestApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/periods/4/window", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestWindowHandler_GetWindowTeacherMayViewStudents(t *testing.T) {
	svc := &stubWindowService{
		window: dto.WindowStateResponse{
			ProgressID: 4,
			StudentID:  8,
			State:      dto.WindowState{Status: dto.WindowOpen, SecondsRemaining: 1800},
		},
	}
	app := windowTestAppAs(svc, 99, "teacher")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/periods/4/window", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestWindowHandler_StreamForbiddenForOtherStudent(t *testing.T) {
	svc := &stubWindowService{
		window: dto.WindowStateResponse{
			ProgressID: 4,
			StudentID:  8,
			State:      dto.WindowState{Status: dto.WindowOpen, SecondsRemaining: 1800},
		},
	}
	app := windowTestApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/periods/4/window/stream", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestWindowHandler_CheckAccess(t *testing.T) {
	minutes := int64(45)
	svc := &stubWindowService{
		access: dto.AccessCheckResult{
			CanAccess:        true,
			StatusCode:       dto.AccessAllowed,
			MinutesRemaining: &minutes,
		},
	}
	app := windowTestApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assessments/20/access", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.AccessCheckResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.True(t, payload.Data.CanAccess)
	require.Equal(t, dto.AccessAllowed, payload.Data.StatusCode)
	// The student identity comes from the JWT context, never the URL.
	require.Equal(t, uint(7), svc.lastStudent)
}
