package service

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/repository"
)

// ClassifyReason derives why a period ended without completion. The checks
// are ordered; the first match wins:
//
//  1. MISSED_GRACE_PERIOD: the grace extension has passed and the student
//     never began a submission.
//  2. LATE_SUBMISSION: a submission exists but arrived after the nominal
//     window end.
//  3. NO_SUBMISSION: everything else.
//
// A stored reason from a prior sweep takes precedence over re-derivation so
// a record never flips categories after it was persisted.
func ClassifyReason(record models.PeriodRecord, now time.Time) string {
	if record.IncompleteReason != "" {
		return record.IncompleteReason
	}

	graceEnd := record.EffectiveGraceEnd()
	if graceEnd != nil && now.After(*graceEnd) && !record.SubmissionRecorded() {
		return models.IncompleteReasonMissedGrace
	}
	if record.SubmittedAt != nil && record.AssessmentWindowEnd != nil &&
		record.SubmittedAt.After(*record.AssessmentWindowEnd) {
		return models.IncompleteReasonLateSubmission
	}

	return models.IncompleteReasonNoSubmission
}

// ClassifyIncomplete partitions the given records into reason categories with
// whole-percent breakdowns and urgency buckets. Only records that are already
// marked incomplete, or pending past their effective deadline, participate.
func ClassifyIncomplete(records []models.PeriodRecord, now time.Time) dto.IncompleteClassification {
	classification := dto.IncompleteClassification{
		ByReason:    make(map[string][]dto.MissedPeriod),
		Percentages: make(map[string]int),
	}

	for _, record := range records {
		if !countsAsIncomplete(record, now) {
			continue
		}

		reason := ClassifyReason(record, now)
		classification.ByReason[reason] = append(classification.ByReason[reason], dto.MissedPeriod{
			ProgressID:       record.ProgressID,
			LessonTopicID:    record.LessonTopicID,
			LessonTopicTitle: record.LessonTopicTitle,
			SubjectName:      record.SubjectName,
			PeriodSequence:   record.PeriodSequence,
			ScheduledDate:    record.ScheduledDate,
			IncompleteReason: reason,
		})
		classification.Total++

		bucketOverdue(&classification.Urgency, record, now)
	}

	for reason, periods := range classification.ByReason {
		classification.Percentages[reason] = wholePercent(len(periods), classification.Total)
	}

	return classification
}

func countsAsIncomplete(record models.PeriodRecord, now time.Time) bool {
	if record.IsIncomplete() {
		return true
	}
	if !record.IsPending() || !record.HasAssessment() {
		return false
	}

	deadline := record.EffectiveGraceEnd()
	return deadline != nil && now.After(*deadline)
}

// bucketOverdue counts the record into an urgency band by whole days since
// its deadline: low 0, medium 1-3, high 4-7, critical 8+.
func bucketOverdue(buckets *dto.UrgencyBuckets, record models.PeriodRecord, now time.Time) {
	deadline := record.EffectiveGraceEnd()
	if deadline == nil {
		scheduled := record.ScheduledDate
		deadline = &scheduled
	}

	days := int(now.Sub(*deadline).Hours() / 24)
	switch {
	case days <= 0:
		buckets.Low++
	case days <= 3:
		buckets.Medium++
	case days <= 7:
		buckets.High++
	default:
		buckets.Critical++
	}
}

// wholePercent rounds to the nearest whole percent, zero-safe.
func wholePercent(part, total int) int {
	if total == 0 {
		return 0
	}

	return int(math.Round(float64(part) * 100 / float64(total)))
}

// IncompleteService serves the incomplete-periods report for one student.
type IncompleteService interface {
	GetIncomplete(ctx context.Context, query dto.ProgressQuery) (dto.IncompleteClassification, error)
}

type incompleteService struct {
	repo   repository.PeriodRepository
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewIncompleteService builds the incomplete report service.
func NewIncompleteService(repo repository.PeriodRepository, logger zerolog.Logger) IncompleteService {
	return &incompleteService{
		repo:   repo,
		logger: logger.With().Str("component", "incomplete_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/siswa-progress-api/internal/service/incomplete"),
		now:    time.Now,
	}
}

func (s *incompleteService) GetIncomplete(ctx context.Context, query dto.ProgressQuery) (dto.IncompleteClassification, error) {
	ctx, span := s.tracer.Start(ctx, "incomplete.classify")
	defer span.End()

	records, err := s.repo.ListByStudent(ctx, repository.PeriodFilter{
		StudentID: query.StudentID,
		SubjectID: query.SubjectID,
		From:      query.From,
		To:        query.To,
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Uint("student_id", query.StudentID).Msg("failed to list period records")
		return dto.IncompleteClassification{}, err
	}

	classification := ClassifyIncomplete(records, s.now().UTC())
	classification.From = query.From
	classification.To = query.To

	return classification, nil
}
