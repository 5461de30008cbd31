package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/siswa-progress-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PeriodRecord{}))

	return db
}

func seedRecord(t *testing.T, db *gorm.DB, record models.PeriodRecord) {
	t.Helper()
	require.NoError(t, db.Create(&record).Error)
}

func baseRecord(progressID uint, day time.Time) models.PeriodRecord {
	assessmentID := uint(100)
	windowEnd := day.Add(2 * time.Hour)
	return models.PeriodRecord{
		ProgressID:            progressID,
		StudentID:             7,
		SubjectID:             1,
		LessonTopicID:         3,
		PeriodSequence:        1,
		ScheduledDate:         day,
		PeriodNumber:          1,
		Status:                models.PeriodStatusScheduled,
		AssessmentID:          &assessmentID,
		AssessmentWindowStart: &day,
		AssessmentWindowEnd:   &windowEnd,
	}
}

func TestListByStudentOrderingAndFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewPeriodRepository(db)
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	second := baseRecord(2, day.Add(24*time.Hour))
	second.PeriodSequence = 2
	first := baseRecord(1, day)
	otherSubject := baseRecord(3, day)
	otherSubject.SubjectID = 2
	otherStudent := baseRecord(4, day)
	otherStudent.StudentID = 8

	for _, record := range []models.PeriodRecord{second, first, otherSubject, otherStudent} {
		seedRecord(t, db, record)
	}

	records, err := repo.ListByStudent(context.Background(), PeriodFilter{StudentID: 7})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, uint(1), records[0].ProgressID)

	subjectID := uint(1)
	records, err = repo.ListByStudent(context.Background(), PeriodFilter{StudentID: 7, SubjectID: &subjectID})
	require.NoError(t, err)
	require.Len(t, records, 2)

	from := day.Add(12 * time.Hour)
	records, err = repo.ListByStudent(context.Background(), PeriodFilter{StudentID: 7, From: &from})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint(2), records[0].ProgressID)
}

func TestListByAssessmentOrdersBySequence(t *testing.T) {
	db := newTestDB(t)
	repo := NewPeriodRepository(db)
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	second := baseRecord(2, day.Add(24*time.Hour))
	second.PeriodSequence = 2
	first := baseRecord(1, day)

	seedRecord(t, db, second)
	seedRecord(t, db, first)

	records, err := repo.ListByAssessment(context.Background(), 100, 7)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, records[0].PeriodSequence)
	require.Equal(t, 2, records[1].PeriodSequence)
}

func TestListWaitingForCustomAssessment(t *testing.T) {
	db := newTestDB(t)
	repo := NewPeriodRepository(db)
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	waiting := baseRecord(1, day)
	waiting.TeacherID = 5
	waiting.RequiresCustomAssessment = true
	waiting.AssessmentCreated = false

	authored := baseRecord(2, day)
	authored.TeacherID = 5
	authored.RequiresCustomAssessment = true
	authored.AssessmentCreated = true

	settled := baseRecord(3, day)
	settled.TeacherID = 5
	settled.RequiresCustomAssessment = true
	settled.Status = models.PeriodStatusCompleted

	otherTeacher := baseRecord(4, day)
	otherTeacher.TeacherID = 6
	otherTeacher.RequiresCustomAssessment = true

	for _, record := range []models.PeriodRecord{waiting, authored, settled, otherTeacher} {
		seedRecord(t, db, record)
	}

	records, err := repo.ListWaitingForCustomAssessment(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint(1), records[0].ProgressID)

	// Teacher id zero means every teacher's queue.
	records, err = repo.ListWaitingForCustomAssessment(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestListExpiredUsesGraceFallback(t *testing.T) {
	db := newTestDB(t)
	repo := NewPeriodRepository(db)
	now := time.Now().UTC()

	graceExpired := baseRecord(1, now.Add(-24*time.Hour))
	graceExpired.AssessmentWindowEnd = timePtr(now.Add(-25 * time.Hour))
	graceExpired.GracePeriodEnd = timePtr(now.Add(-23 * time.Hour))

	graceStillOpen := baseRecord(2, now.Add(-24*time.Hour))
	graceStillOpen.AssessmentWindowEnd = timePtr(now.Add(-time.Hour))
	graceStillOpen.GracePeriodEnd = timePtr(now.Add(time.Hour))

	windowExpired := baseRecord(3, now.Add(-24*time.Hour))
	windowExpired.AssessmentWindowEnd = timePtr(now.Add(-time.Hour))

	for _, record := range []models.PeriodRecord{graceExpired, graceStillOpen, windowExpired} {
		seedRecord(t, db, record)
	}

	records, err := repo.ListExpired(context.Background(), now, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, records, 2)
	ids := []uint{records[0].ProgressID, records[1].ProgressID}
	require.ElementsMatch(t, []uint{1, 3}, ids)
}

func TestUpdatePersistsMutation(t *testing.T) {
	db := newTestDB(t)
	repo := NewPeriodRepository(db)
	day := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	seedRecord(t, db, baseRecord(1, day))

	record, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)

	record.Status = models.PeriodStatusCompleted
	require.NoError(t, repo.Update(context.Background(), &record))

	reloaded, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.PeriodStatusCompleted, reloaded.Status)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
