package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

type stubProgressService struct {
	response      dto.StudentProgressResponse
	record        models.PeriodRecord
	waiting       []dto.WaitingPeriod
	err           error
	lastQuery     dto.ProgressQuery
	lastProgress  uint
	lastTeacherID uint
}

func (s *stubProgressService) GetStudentProgress(_ context.Context, query dto.ProgressQuery) (dto.StudentProgressResponse, error) {
	s.lastQuery = query
	return s.response, s.err
}

func (s *stubProgressService) MarkComplete(_ context.Context, progressID uint, _ dto.MarkCompleteRequest) (models.PeriodRecord, error) {
	s.lastProgress = progressID
	return s.record, s.err
}

func (s *stubProgressService) ListWaitingForTeacher(_ context.Context, teacherID uint) ([]dto.WaitingPeriod, error) {
	s.lastTeacherID = teacherID
	return s.waiting, s.err
}

type stubIncompleteService struct {
	classification dto.IncompleteClassification
	err            error
}

func (s *stubIncompleteService) GetIncomplete(_ context.Context, _ dto.ProgressQuery) (dto.IncompleteClassification, error) {
	return s.classification, s.err
}

func progressTestApp(progress service.ProgressService, incomplete service.IncompleteService, userID uint, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	})
	handler.NewProgressHandler(progress, incomplete, zerolog.Nop()).Register(group)
	return app
}

func TestProgressHandler_GetProgress(t *testing.T) {
	svc := &stubProgressService{
		response: dto.StudentProgressResponse{
			Summary: dto.Summary{TotalLessons: 2, FullyCompleted: 1, OverallCompletionRate: 50},
		},
	}
	app := progressTestApp(svc, &stubIncompleteService{}, 7, "student")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/7/progress?subject_id=3", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                        `json:"success"`
		Data    dto.StudentProgressResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()

	require.True(t, payload.Success)
	require.Equal(t, 2, payload.Data.Summary.TotalLessons)
	require.Equal(t, uint(7), svc.lastQuery.StudentID)
	require.NotNil(t, svc.lastQuery.SubjectID)
	require.Equal(t, uint(3), *svc.lastQuery.SubjectID)
}

func TestProgressHandler_GetProgressForbiddenForOtherStudent(t *testing.T) {
	svc := &stubProgressService{}
	app := progressTestApp(svc, &stubIncompleteService{}, 7, "student")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/8/progress", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// A teacher may read any student's progress.
	app = progressTestApp(svc, &stubIncompleteService{}, 5, "teacher")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/students/8/progress", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestProgressHandler_GetProgressBadParams(t *testing.T) {
	app := progressTestApp(&stubProgressService{}, &stubIncompleteService{}, 7, "student")

	for _, path := range []string{
		"/api/v1/students/abc/progress",
		"/api/v1/students/7/progress?subject_id=zero",
		"/api/v1/students/7/progress?from=not-a-date",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestProgressHandler_GetIncomplete(t *testing.T) {
	incomplete := &stubIncompleteService{
		classification: dto.IncompleteClassification{
			Total:       2,
			Percentages: map[string]int{models.IncompleteReasonNoSubmission: 100},
		},
	}
	app := progressTestApp(&stubProgressService{}, incomplete, 7, "student")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/7/incomplete", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.IncompleteClassification `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	require.Equal(t, 2, payload.Data.Total)
}

func TestProgressHandler_MarkComplete(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubProgressService{
		record: models.PeriodRecord{ProgressID: 9, Status: models.PeriodStatusCompleted, CompletedAt: &now},
	}
	app := progressTestApp(svc, &stubIncompleteService{}, 7, "student")

	body, err := json.Marshal(dto.MarkCompleteRequest{SubmittedAt: "2026-03-09T09:30:00Z"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/periods/9/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, uint(9), svc.lastProgress)
}

func TestProgressHandler_MarkCompleteRejectsMalformedSubmittedAt(t *testing.T) {
	svc := &stubProgressService{}
	app := progressTestApp(svc, &stubIncompleteService{}, 7, "student")

	body, err := json.Marshal(dto.MarkCompleteRequest{SubmittedAt: "not-a-timestamp"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/periods/9/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	require.Zero(t, svc.lastProgress)
}

func TestProgressHandler_MarkCompleteNotFound(t *testing.T) {
	svc := &stubProgressService{err: service.ErrPeriodNotFound}
	app := progressTestApp(svc, &stubIncompleteService{}, 7, "student")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/periods/99/complete", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProgressHandler_ListWaiting(t *testing.T) {
	svc := &stubProgressService{
		waiting: []dto.WaitingPeriod{{ProgressID: 2, StudentID: 7, PeriodSequence: 2}},
	}

	app := fiber.New()
	group := app.Group("/api/v1/teacher", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(5))
		c.Locals("user_role", "teacher")
		return c.Next()
	})
	handler.NewProgressHandler(svc, &stubIncompleteService{}, zerolog.Nop()).RegisterTeacher(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/teacher/waiting", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []dto.WaitingPeriod `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	require.Len(t, payload.Data, 1)
	require.Equal(t, uint(5), svc.lastTeacherID)
}

func TestProgressHandler_ServiceError(t *testing.T) {
	svc := &stubProgressService{err: errors.New("boom")}
	app := progressTestApp(svc, &stubIncompleteService{}, 7, "student")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/7/progress", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}
