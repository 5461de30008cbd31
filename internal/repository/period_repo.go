package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/siswa-progress-api/internal/models"
)

// PeriodFilter scopes period record queries.
type PeriodFilter struct {
	StudentID uint
	SubjectID *uint
	From      *time.Time
	To        *time.Time
}

// PeriodRepository defines read and mutation operations over period records.
// Everything except Update is consumed read-only by the derivation services.
type PeriodRepository interface {
	GetByID(ctx context.Context, progressID uint) (models.PeriodRecord, error)
	ListByStudent(ctx context.Context, filter PeriodFilter) ([]models.PeriodRecord, error)
	ListLessonGroup(ctx context.Context, studentID, lessonTopicID uint) ([]models.PeriodRecord, error)
	ListByAssessment(ctx context.Context, assessmentID, studentID uint) ([]models.PeriodRecord, error)
	ListWaitingForCustomAssessment(ctx context.Context, teacherID uint) ([]models.PeriodRecord, error)
	ListWindowOpenCandidates(ctx context.Context, now time.Time) ([]models.PeriodRecord, error)
	ListExpired(ctx context.Context, now time.Time, lookBack time.Duration) ([]models.PeriodRecord, error)
	Update(ctx context.Context, record *models.PeriodRecord) error
}

type periodRepository struct {
	db *gorm.DB
}

// NewPeriodRepository instantiates a GORM-backed repository.
func NewPeriodRepository(db *gorm.DB) PeriodRepository {
	return &periodRepository{db: db}
}

func (r *periodRepository) GetByID(ctx context.Context, progressID uint) (models.PeriodRecord, error) {
	var record models.PeriodRecord
	if err := r.db.WithContext(ctx).First(&record, progressID).Error; err != nil {
		return models.PeriodRecord{}, err
	}

	return record, nil
}

func (r *periodRepository) ListByStudent(ctx context.Context, filter PeriodFilter) ([]models.PeriodRecord, error) {
	query := r.db.WithContext(ctx).Where("student_id = ?", filter.StudentID)

	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.From != nil {
		query = query.Where("scheduled_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("scheduled_date <= ?", *filter.To)
	}

	var records []models.PeriodRecord
	if err := query.Order("scheduled_date ASC, period_number ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *periodRepository) ListLessonGroup(ctx context.Context, studentID, lessonTopicID uint) ([]models.PeriodRecord, error) {
	var records []models.PeriodRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND lesson_topic_id = ?", studentID, lessonTopicID).
		Order("scheduled_date ASC, period_number ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *periodRepository) ListByAssessment(ctx context.Context, assessmentID, studentID uint) ([]models.PeriodRecord, error) {
	var records []models.PeriodRecord
	err := r.db.WithContext(ctx).
		Where("assessment_id = ? AND student_id = ?", assessmentID, studentID).
		Order("period_sequence ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *periodRepository) ListWaitingForCustomAssessment(ctx context.Context, teacherID uint) ([]models.PeriodRecord, error) {
	query := r.db.WithContext(ctx).
		Where("requires_custom_assessment = ? AND assessment_created = ?", true, false).
		Where("status IN ?", []string{models.PeriodStatusScheduled, models.PeriodStatusInProgress})

	if teacherID > 0 {
		query = query.Where("teacher_id = ?", teacherID)
	}

	var records []models.PeriodRecord
	if err := query.Order("scheduled_date ASC, period_number ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *periodRepository) ListWindowOpenCandidates(ctx context.Context, now time.Time) ([]models.PeriodRecord, error) {
	var records []models.PeriodRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PeriodStatusScheduled).
		Where("assessment_id IS NOT NULL").
		Where("assessment_window_start IS NOT NULL AND assessment_window_start <= ?", now).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *periodRepository) ListExpired(ctx context.Context, now time.Time, lookBack time.Duration) ([]models.PeriodRecord, error) {
	horizon := now.Add(-lookBack)

	var records []models.PeriodRecord
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.PeriodStatusScheduled, models.PeriodStatusInProgress}).
		Where("assessment_id IS NOT NULL").
		Where("scheduled_date >= ?", horizon).
		Where(
			r.db.Where("grace_period_end IS NOT NULL AND grace_period_end < ?", now).
				Or("grace_period_end IS NULL AND assessment_window_end IS NOT NULL AND assessment_window_end < ?", now),
		).
		Order("scheduled_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *periodRepository) Update(ctx context.Context, record *models.PeriodRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}
