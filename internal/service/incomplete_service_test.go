package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/repository"
)

func expiredRecord(progressID uint, day time.Time) models.PeriodRecord {
	record := lessonPeriod(progressID, 1, models.PeriodStatusIncomplete, day)
	record.LessonTopicID = progressID
	return record
}

func TestClassifyReasonOrdering(t *testing.T) {
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	now := day.Add(72 * time.Hour)

	// Grace passed, never submitted.
	missedGrace := expiredRecord(1, day)
	missedGrace.GracePeriodEnd = timePointer(day.Add(3 * time.Hour))
	require.Equal(t, models.IncompleteReasonMissedGrace, ClassifyReason(missedGrace, now))

	// Submitted, but after the window end.
	late := expiredRecord(2, day)
	late.SubmittedAt = timePointer(day.Add(5 * time.Hour))
	require.Equal(t, models.IncompleteReasonLateSubmission, ClassifyReason(late, now))

	// Submission started in time but never finished.
	abandoned := expiredRecord(3, day)
	abandoned.SubmittedAt = timePointer(day.Add(time.Hour))
	require.Equal(t, models.IncompleteReasonNoSubmission, ClassifyReason(abandoned, now))

	// A persisted reason is never re-derived.
	sticky := expiredRecord(4, day)
	sticky.IncompleteReason = models.IncompleteReasonLateSubmission
	sticky.GracePeriodEnd = timePointer(day.Add(3 * time.Hour))
	require.Equal(t, models.IncompleteReasonLateSubmission, ClassifyReason(sticky, now))
}

func TestClassifyIncompletePercentages(t *testing.T) {
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	now := day.Add(72 * time.Hour)

	records := []models.PeriodRecord{
		expiredRecord(1, day),
		expiredRecord(2, day),
		expiredRecord(3, day),
	}
	records[0].GracePeriodEnd = timePointer(day.Add(3 * time.Hour))
	records[1].GracePeriodEnd = timePointer(day.Add(3 * time.Hour))
	records[2].SubmittedAt = timePointer(day.Add(5 * time.Hour))

	classification := ClassifyIncomplete(records, now)
	require.Equal(t, 3, classification.Total)
	require.Len(t, classification.ByReason[models.IncompleteReasonMissedGrace], 2)
	require.Len(t, classification.ByReason[models.IncompleteReasonLateSubmission], 1)

	// 2/3 and 1/3 round to the nearest whole percent.
	require.Equal(t, 67, classification.Percentages[models.IncompleteReasonMissedGrace])
	require.Equal(t, 33, classification.Percentages[models.IncompleteReasonLateSubmission])
}

func TestClassifyIncompleteEmptyInput(t *testing.T) {
	classification := ClassifyIncomplete(nil, time.Now().UTC())
	require.Zero(t, classification.Total)
	require.Empty(t, classification.ByReason)
	require.Empty(t, classification.Percentages)
	require.Zero(t, classification.Urgency.Critical)
}

func TestClassifyIncompleteSkipsSettledAndFutureRecords(t *testing.T) {
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	now := day.Add(time.Hour)

	completed := lessonPeriod(1, 1, models.PeriodStatusCompleted, day)
	stillOpen := lessonPeriod(2, 1, models.PeriodStatusInProgress, day)
	stillOpen.AssessmentWindowEnd = timePointer(now.Add(time.Hour))

	classification := ClassifyIncomplete([]models.PeriodRecord{completed, stillOpen}, now)
	require.Zero(t, classification.Total)
}

func TestClassifyIncompleteDerivesOverduePending(t *testing.T) {
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	now := day.Add(72 * time.Hour)

	// Still IN_PROGRESS in the database, but its deadline passed: the report
	// must count it without waiting for the hourly sweep.
	overdue := lessonPeriod(1, 1, models.PeriodStatusInProgress, day)

	classification := ClassifyIncomplete([]models.PeriodRecord{overdue}, now)
	require.Equal(t, 1, classification.Total)
	require.Len(t, classification.ByReason[models.IncompleteReasonMissedGrace], 1)
}

func TestClassifyIncompleteUrgencyBuckets(t *testing.T) {
	now := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)

	overdueBy := func(progressID uint, days int) models.PeriodRecord {
		day := now.Add(-time.Duration(days) * 24 * time.Hour)
		record := expiredRecord(progressID, day)
		record.GracePeriodEnd = timePointer(day)
		return record
	}

	records := []models.PeriodRecord{
		overdueBy(1, 0),
		overdueBy(2, 2),
		overdueBy(3, 5),
		overdueBy(4, 10),
	}

	classification := ClassifyIncomplete(records, now)
	require.Equal(t, dto.UrgencyBuckets{Low: 1, Medium: 1, High: 1, Critical: 1}, classification.Urgency)
}

func TestIncompleteServiceQueriesScope(t *testing.T) {
	db := newWindowTestDB(t)
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	inRange := expiredRecord(1, day)
	inRange.SubjectID = 1
	outOfRange := expiredRecord(2, day.Add(-30 * 24 * time.Hour))
	outOfRange.SubjectID = 1
	require.NoError(t, db.Create(&inRange).Error)
	require.NoError(t, db.Create(&outOfRange).Error)

	svc := NewIncompleteService(repository.NewPeriodRepository(db), zerolog.Nop())

	from := day.Add(-7 * 24 * time.Hour)
	classification, err := svc.GetIncomplete(context.Background(), dto.ProgressQuery{
		StudentID: 7,
		From:      &from,
	})
	require.NoError(t, err)
	require.Equal(t, 1, classification.Total)
	require.NotNil(t, classification.From)
}
