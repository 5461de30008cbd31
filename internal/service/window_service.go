package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/observability"
	"github.com/noah-isme/siswa-progress-api/internal/repository"
	"github.com/noah-isme/siswa-progress-api/internal/utils"
)

// ErrPeriodNotFound is returned when a progress id resolves to no record.
var ErrPeriodNotFound = errors.New("period record not found")

// ComputeWindowState derives the access state of an assessment window at the
// given instant. Pure: identical inputs always yield identical output, and
// the returned second counts are never negative.
//
// Boundaries are inclusive at windowStart, windowEnd and graceEnd so a
// request arriving exactly on a boundary is accepted; timer granularity must
// not lock students out. Malformed bounds (end before start) degrade to
// CLOSED instead of producing negative durations.
func ComputeWindowState(now time.Time, windowStart, windowEnd, graceEnd *time.Time, assessmentPresent bool) dto.WindowState {
	if !assessmentPresent || windowStart == nil || windowEnd == nil {
		return dto.WindowState{Status: dto.WindowNoAssessment}
	}

	if windowEnd.Before(*windowStart) {
		return dto.WindowState{Status: dto.WindowClosed}
	}

	if now.Before(*windowStart) {
		return dto.WindowState{
			Status:           dto.WindowNotYetOpen,
			SecondsUntilOpen: ceilSeconds(windowStart.Sub(now)),
		}
	}

	if !now.After(*windowEnd) {
		return dto.WindowState{
			Status:           dto.WindowOpen,
			SecondsRemaining: floorSeconds(windowEnd.Sub(now)),
		}
	}

	if graceEnd != nil && !now.After(*graceEnd) {
		return dto.WindowState{
			Status:           dto.WindowGrace,
			SecondsRemaining: floorSeconds(graceEnd.Sub(now)),
		}
	}

	return dto.WindowState{Status: dto.WindowClosed}
}

// ComputeWindowStateFor evaluates a period record's window at the given
// instant, using the record's effective grace deadline.
func ComputeWindowStateFor(record models.PeriodRecord, now time.Time) dto.WindowState {
	return ComputeWindowState(
		now,
		record.AssessmentWindowStart,
		record.AssessmentWindowEnd,
		record.EffectiveGraceEnd(),
		record.HasAssessment(),
	)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func floorSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// WindowService exposes window state and access checks for single periods.
type WindowService interface {
	GetWindowState(ctx context.Context, progressID uint, now time.Time) (dto.WindowStateResponse, error)
	CheckAccess(ctx context.Context, assessmentID, studentID uint, now time.Time) (dto.AccessCheckResult, error)
}

type windowService struct {
	periods repository.PeriodRepository
	zone    *time.Location
	logger  zerolog.Logger
}

// NewWindowService builds the window service. zone is the institution's
// display timezone; local render strings use it regardless of server locale.
func NewWindowService(periods repository.PeriodRepository, zone *time.Location, logger zerolog.Logger) WindowService {
	if zone == nil {
		zone = time.UTC
	}
	return &windowService{
		periods: periods,
		zone:    zone,
		logger:  logger.With().Str("component", "window_service").Logger(),
	}
}

func (s *windowService) GetWindowState(ctx context.Context, progressID uint, now time.Time) (dto.WindowStateResponse, error) {
	record, err := s.periods.GetByID(ctx, progressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.WindowStateResponse{}, ErrPeriodNotFound
		}
		return dto.WindowStateResponse{}, err
	}

	state := ComputeWindowStateFor(record, now)

	response := dto.WindowStateResponse{
		ProgressID:  record.ProgressID,
		StudentID:   record.StudentID,
		State:       state,
		Countdown:   countdownFor(state),
		WindowStart: record.AssessmentWindowStart,
		WindowEnd:   record.AssessmentWindowEnd,
		GraceEnd:    record.EffectiveGraceEnd(),
		EvaluatedAt: now,
	}

	if record.AssessmentWindowStart != nil {
		response.LocalStart = utils.FormatInZone(*record.AssessmentWindowStart, s.zone)
	}
	if record.AssessmentWindowEnd != nil {
		response.LocalEnd = utils.FormatInZone(*record.AssessmentWindowEnd, s.zone)
	}

	return response, nil
}

// CheckAccess is the server-computed access decision for one (assessment,
// student) pair. It selects the earliest pending period linked to the
// assessment, then derives the decision from the same pure state machine the
// countdown path uses; Reconcile guards the two paths against drift.
func (s *windowService) CheckAccess(ctx context.Context, assessmentID, studentID uint, now time.Time) (dto.AccessCheckResult, error) {
	records, err := s.periods.ListByAssessment(ctx, assessmentID, studentID)
	if err != nil {
		return dto.AccessCheckResult{}, err
	}

	if len(records) == 0 {
		return dto.AccessCheckResult{
			CanAccess:   false,
			StatusCode:  dto.AccessBlocked,
			Reason:      "assessment is not currently scheduled for this student",
			CurrentTime: now,
		}, nil
	}

	target, found := earliestPending(records)
	if !found {
		return dto.AccessCheckResult{
			CanAccess:   false,
			StatusCode:  dto.AccessAlreadySubmitted,
			Reason:      "assessment already submitted",
			CurrentTime: now,
		}, nil
	}

	state := ComputeWindowStateFor(target, now)
	result := accessFromState(target, state, now)

	if mismatch := Reconcile(state, result); mismatch != "" {
		observability.AccessDivergence().Inc()
		s.logger.Error().
			Uint("assessment_id", assessmentID).
			Uint("student_id", studentID).
			Str("mismatch", mismatch).
			Msg("window state and access check disagree")
	}

	return result, nil
}

// earliestPending picks the lowest-sequence period that still awaits an
// outcome. A lesson can link several periods to one assessment id, so the
// first unresolved one is the authoritative target.
func earliestPending(records []models.PeriodRecord) (models.PeriodRecord, bool) {
	for _, record := range records {
		if record.IsPending() {
			return record, true
		}
	}
	return models.PeriodRecord{}, false
}

func accessFromState(record models.PeriodRecord, state dto.WindowState, now time.Time) dto.AccessCheckResult {
	result := dto.AccessCheckResult{
		CurrentTime: now,
		WindowStart: record.AssessmentWindowStart,
		WindowEnd:   record.AssessmentWindowEnd,
	}

	switch state.Status {
	case dto.WindowNoAssessment:
		result.StatusCode = dto.AccessNoAssessment
		result.Reason = "no assessment has been authored for this period yet"
	case dto.WindowNotYetOpen:
		minutes := ceilMinutes(state.SecondsUntilOpen)
		result.StatusCode = dto.AccessNotYetOpen
		result.Reason = "assessment window has not opened yet"
		result.MinutesUntilOpen = &minutes
	case dto.WindowOpen:
		minutes := floorMinutes(state.SecondsRemaining)
		result.CanAccess = true
		result.StatusCode = dto.AccessAllowed
		result.MinutesRemaining = &minutes
	case dto.WindowGrace:
		minutes := floorMinutes(state.SecondsRemaining)
		result.CanAccess = true
		result.StatusCode = dto.AccessAllowed
		result.GracePeriodActive = true
		result.MinutesRemaining = &minutes
	default:
		result.StatusCode = dto.AccessExpired
		result.Reason = "assessment window has closed"
	}

	return result
}

// Reconcile cross-checks the fine-grained window state against the
// coarse-grained access result. The two are derived from one function, so a
// non-empty mismatch is a defect worth alerting on, not a state to prefer.
func Reconcile(state dto.WindowState, result dto.AccessCheckResult) string {
	if state.Actionable() != result.CanAccess {
		return "actionability mismatch"
	}
	if state.Status == dto.WindowGrace && !result.GracePeriodActive {
		return "grace flag mismatch"
	}
	return ""
}

func ceilMinutes(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

func floorMinutes(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return seconds / 60
}

func countdownFor(state dto.WindowState) string {
	switch state.Status {
	case dto.WindowNotYetOpen:
		return utils.CountdownString(state.SecondsUntilOpen)
	case dto.WindowOpen, dto.WindowGrace:
		return utils.CountdownString(state.SecondsRemaining)
	case dto.WindowNoAssessment:
		return "N/A"
	default:
		return "Expired"
	}
}
