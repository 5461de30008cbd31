package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/observability"
	"github.com/noah-isme/siswa-progress-api/internal/repository"
	"github.com/noah-isme/siswa-progress-api/internal/utils"
)

// urgencyHorizon bounds the urgent list: a pending actionable period whose
// deadline falls within this horizon is urgent.
const urgencyHorizon = 24 * time.Hour

// Aggregate groups raw period records into per-lesson progress and a
// cross-lesson summary. Pure function of its inputs: the single now
// parameter is the only clock it sees, so it is deterministic and testable
// without timers.
func Aggregate(periods []models.PeriodRecord, now time.Time) ([]dto.LessonProgress, dto.Summary) {
	groups := make(map[uint][]models.PeriodRecord)
	topicOrder := make([]uint, 0)
	for _, period := range periods {
		if _, seen := groups[period.LessonTopicID]; !seen {
			topicOrder = append(topicOrder, period.LessonTopicID)
		}
		groups[period.LessonTopicID] = append(groups[period.LessonTopicID], period)
	}

	lessons := make([]dto.LessonProgress, 0, len(topicOrder))
	summary := dto.Summary{}
	rollups := make(map[uint]*dto.SubjectRollup)
	subjectOrder := make([]uint, 0)

	for _, topicID := range topicOrder {
		group := groups[topicID]
		SortLessonPeriods(group)

		lesson := buildLessonProgress(group, now)
		lessons = append(lessons, lesson)

		summary.TotalLessons++
		rollup, seen := rollups[lesson.SubjectID]
		if !seen {
			rollup = &dto.SubjectRollup{SubjectID: lesson.SubjectID, SubjectName: lesson.SubjectName}
			rollups[lesson.SubjectID] = rollup
			subjectOrder = append(subjectOrder, lesson.SubjectID)
		}
		rollup.TotalLessons++

		switch {
		case lesson.IsFullyCompleted:
			summary.FullyCompleted++
			rollup.FullyCompleted++
		case lesson.CompletedCount > 0:
			summary.PartiallyCompleted++
			rollup.PartiallyCompleted++
		case lesson.IncompleteCount > 0:
			summary.IncompleteLessons++
			rollup.IncompleteLessons++
		default:
			summary.ScheduledLessons++
			rollup.ScheduledLessons++
		}

		summary.Urgent = append(summary.Urgent, urgentPeriods(group, now)...)
		summary.Missed = append(summary.Missed, missedPeriods(group)...)
	}

	if summary.TotalLessons > 0 {
		summary.OverallCompletionRate = summary.FullyCompleted * 100 / summary.TotalLessons
	}

	summary.Subjects = make([]dto.SubjectRollup, 0, len(subjectOrder))
	for _, subjectID := range subjectOrder {
		rollup := rollups[subjectID]
		if rollup.TotalLessons > 0 {
			rollup.OverallCompletionRate = rollup.FullyCompleted * 100 / rollup.TotalLessons
		}
		summary.Subjects = append(summary.Subjects, *rollup)
	}

	sortUrgent(summary.Urgent)

	return lessons, summary
}

func buildLessonProgress(group []models.PeriodRecord, now time.Time) dto.LessonProgress {
	first := group[0]
	lesson := dto.LessonProgress{
		LessonTopicID:    first.LessonTopicID,
		LessonTopicTitle: first.LessonTopicTitle,
		SubjectID:        first.SubjectID,
		SubjectName:      first.SubjectName,
		Periods:          make([]dto.PeriodProgress, 0, len(group)),
	}

	decisions := DecidePeriods(group, now)

	var scoreTotal float64
	var scoredCount int

	for i, period := range group {
		switch {
		case period.IsCompleted():
			lesson.CompletedCount++
			if period.Score != nil {
				scoreTotal += *period.Score
				scoredCount++
			}
		case period.IsIncomplete():
			lesson.IncompleteCount++
		default:
			lesson.ScheduledCount++
		}

		lesson.Periods = append(lesson.Periods, dto.PeriodProgress{
			ProgressID:               period.ProgressID,
			PeriodSequence:           period.PeriodSequence,
			TotalPeriods:             period.TotalPeriodsInSequence,
			ScheduledDate:            period.ScheduledDate,
			PeriodNumber:             period.PeriodNumber,
			Status:                   period.Status,
			Score:                    period.Score,
			MaxScore:                 period.MaxScore,
			CompletedAt:              period.CompletedAt,
			IncompleteReason:         period.IncompleteReason,
			RequiresCustomAssessment: period.RequiresCustomAssessment,
			AssessmentCreated:        period.AssessmentCreated,
			Decision:                 decisions[i],
		})
	}

	total := len(group)
	if total > 0 {
		lesson.CompletionPercentage = lesson.CompletedCount * 100 / total
		lesson.IsFullyCompleted = lesson.CompletedCount == total
	}

	// Periods without a recorded score are excluded from the average, not
	// treated as zero.
	if scoredCount > 0 {
		average := scoreTotal / float64(scoredCount)
		lesson.AverageScore = &average
	}

	return lesson
}

// urgentPeriods lists the lesson's actionable periods whose deadline falls
// within the urgency horizon. The dependency resolver already guarantees at
// most one actionable period per lesson.
func urgentPeriods(group []models.PeriodRecord, now time.Time) []dto.UrgentPeriod {
	resolution := ResolveLesson(group, now)
	if resolution.ActionablePeriod == nil {
		return nil
	}

	period := *resolution.ActionablePeriod
	state := ComputeWindowStateFor(period, now)
	if !state.Actionable() {
		return nil
	}
	if state.SecondsRemaining > int64(urgencyHorizon/time.Second) {
		return nil
	}

	deadline := period.AssessmentWindowEnd
	if state.Status == dto.WindowGrace {
		deadline = period.EffectiveGraceEnd()
	}
	if deadline == nil {
		return nil
	}

	return []dto.UrgentPeriod{{
		ProgressID:       period.ProgressID,
		LessonTopicID:    period.LessonTopicID,
		LessonTopicTitle: period.LessonTopicTitle,
		SubjectName:      period.SubjectName,
		PeriodSequence:   period.PeriodSequence,
		Deadline:         *deadline,
		SecondsRemaining: state.SecondsRemaining,
	}}
}

func missedPeriods(group []models.PeriodRecord) []dto.MissedPeriod {
	var missed []dto.MissedPeriod
	for _, period := range group {
		if !period.IsIncomplete() {
			continue
		}
		missed = append(missed, dto.MissedPeriod{
			ProgressID:       period.ProgressID,
			LessonTopicID:    period.LessonTopicID,
			LessonTopicTitle: period.LessonTopicTitle,
			SubjectName:      period.SubjectName,
			PeriodSequence:   period.PeriodSequence,
			ScheduledDate:    period.ScheduledDate,
			IncompleteReason: period.IncompleteReason,
		})
	}
	return missed
}

// sortUrgent orders soonest deadline first, ties broken by progress id so
// the ordering is deterministic.
func sortUrgent(urgent []dto.UrgentPeriod) {
	sort.SliceStable(urgent, func(i, j int) bool {
		if !urgent[i].Deadline.Equal(urgent[j].Deadline) {
			return urgent[i].Deadline.Before(urgent[j].Deadline)
		}
		return urgent[i].ProgressID < urgent[j].ProgressID
	})
}

// ProgressService produces aggregated lesson progress for student scopes and
// applies the mark-complete mutation.
type ProgressService interface {
	GetStudentProgress(ctx context.Context, query dto.ProgressQuery) (dto.StudentProgressResponse, error)
	MarkComplete(ctx context.Context, progressID uint, req dto.MarkCompleteRequest) (models.PeriodRecord, error)
	ListWaitingForTeacher(ctx context.Context, teacherID uint) ([]dto.WaitingPeriod, error)
}

type progressService struct {
	periods     repository.PeriodRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	invalidator *InvalidationService
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewProgressService builds the progress aggregator service.
func NewProgressService(periods repository.PeriodRepository, cache *redis.Client, ttl time.Duration, invalidator *InvalidationService, logger zerolog.Logger) ProgressService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &progressService{
		periods:     periods,
		cache:       cache,
		cacheTTL:    ttl,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "progress_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/siswa-progress-api/internal/service/progress"),
		now:         time.Now,
	}
}

func (s *progressService) GetStudentProgress(ctx context.Context, query dto.ProgressQuery) (dto.StudentProgressResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("student.id", int64(query.StudentID)),
	}
	spanCtx, span := s.tracer.Start(ctx, "progress.aggregate", trace.WithAttributes(attrs...))
	defer span.End()

	cacheKey, err := s.cacheKey(spanCtx, query)
	if err == nil && cacheKey != "" {
		if cached, cacheErr := s.cache.Get(spanCtx, cacheKey).Result(); cacheErr == nil {
			var response dto.StudentProgressResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				observability.ProgressCacheRequests().WithLabelValues("hit").Inc()
				return response, nil
			}
		} else if !errors.Is(cacheErr, redis.Nil) {
			s.logger.Warn().Err(cacheErr).Msg("failed to read progress cache")
		}
	}

	records, err := s.periods.ListByStudent(spanCtx, repository.PeriodFilter{
		StudentID: query.StudentID,
		SubjectID: query.SubjectID,
		From:      query.From,
		To:        query.To,
	})
	if err != nil {
		span.RecordError(err)
		observability.ProgressCacheRequests().WithLabelValues("error").Inc()
		return dto.StudentProgressResponse{}, err
	}

	lessons, summary := Aggregate(records, s.now().UTC())
	response := dto.StudentProgressResponse{Lessons: lessons, Summary: summary}

	if cacheKey != "" {
		if payload, marshalErr := json.Marshal(response); marshalErr == nil {
			if setErr := s.cache.Set(spanCtx, cacheKey, payload, s.cacheTTL).Err(); setErr != nil {
				s.logger.Warn().Err(setErr).Msg("failed to store progress cache")
			}
		}
	}

	observability.ProgressCacheRequests().WithLabelValues("miss").Inc()

	return response, nil
}

// MarkComplete records a completion outcome, bumps the student's cache
// version and broadcasts the change so countdown watchers refresh at once.
func (s *progressService) MarkComplete(ctx context.Context, progressID uint, req dto.MarkCompleteRequest) (models.PeriodRecord, error) {
	record, err := s.periods.GetByID(ctx, progressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PeriodRecord{}, ErrPeriodNotFound
		}
		return models.PeriodRecord{}, err
	}

	now := s.now().UTC()
	record.Status = models.PeriodStatusCompleted
	record.CompletedAt = &now
	record.IncompleteReason = ""
	if req.Score != nil {
		record.Score = req.Score
	}
	if req.MaxScore != nil {
		record.MaxScore = req.MaxScore
	}
	// A malformed submission timestamp is never coerced to now: that could
	// flip a later lateness classification. It is logged and left null.
	if strings.TrimSpace(req.SubmittedAt) != "" {
		if submitted := utils.ParseServerTime(req.SubmittedAt); submitted != nil {
			record.SubmittedAt = submitted
		} else {
			s.logger.Warn().
				Uint("progress_id", progressID).
				Str("submitted_at", req.SubmittedAt).
				Msg("unparseable submission timestamp ignored")
		}
	} else if record.SubmittedAt == nil {
		record.SubmittedAt = &now
	}

	if err := s.periods.Update(ctx, &record); err != nil {
		return models.PeriodRecord{}, err
	}

	if s.invalidator != nil {
		s.invalidator.RecordChanged(ctx, record.StudentID, record.ProgressID)
	}

	return record, nil
}

func (s *progressService) ListWaitingForTeacher(ctx context.Context, teacherID uint) ([]dto.WaitingPeriod, error) {
	records, err := s.periods.ListWaitingForCustomAssessment(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	waiting := make([]dto.WaitingPeriod, 0, len(records))
	for _, record := range records {
		entry := dto.WaitingPeriod{
			ProgressID:       record.ProgressID,
			StudentID:        record.StudentID,
			LessonTopicID:    record.LessonTopicID,
			LessonTopicTitle: record.LessonTopicTitle,
			SubjectName:      record.SubjectName,
			PeriodSequence:   record.PeriodSequence,
			ScheduledDate:    record.ScheduledDate,
		}

		// The teacher authors the follow-up from the previous period's
		// performance, so surface it alongside the queue entry.
		group, groupErr := s.periods.ListLessonGroup(ctx, record.StudentID, record.LessonTopicID)
		if groupErr == nil {
			for _, sibling := range group {
				if sibling.PeriodSequence == record.PeriodSequence-1 && sibling.IsCompleted() {
					entry.PreviousScore = sibling.Score
					entry.PreviousDoneAt = sibling.CompletedAt
				}
			}
		}

		waiting = append(waiting, entry)
	}

	return waiting, nil
}

// cacheKey builds a versioned cache key: invalidation bumps the per-student
// version counter instead of scanning for keys to delete.
func (s *progressService) cacheKey(ctx context.Context, query dto.ProgressQuery) (string, error) {
	if s.cache == nil {
		return "", nil
	}

	version := int64(0)
	if s.invalidator != nil {
		v, err := s.invalidator.CacheVersion(ctx, query.StudentID)
		if err != nil {
			return "", err
		}
		version = v
	}

	subjectKey := "all"
	if query.SubjectID != nil {
		subjectKey = fmt.Sprintf("%d", *query.SubjectID)
	}
	fromKey, toKey := "-", "-"
	if query.From != nil {
		fromKey = query.From.UTC().Format("2006-01-02")
	}
	if query.To != nil {
		toKey = query.To.UTC().Format("2006-01-02")
	}

	return fmt.Sprintf("progress:v%d:student:%d:subject:%s:%s:%s", version, query.StudentID, subjectKey, fromKey, toKey), nil
}
