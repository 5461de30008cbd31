package models

import (
	"time"

	"gorm.io/datatypes"
)

// Period lifecycle statuses. Records are created as SCHEDULED by schedule
// generation, move to IN_PROGRESS when the window opener sweep runs, and end
// as COMPLETED, MISSED or INCOMPLETE.
const (
	PeriodStatusScheduled  = "SCHEDULED"
	PeriodStatusInProgress = "IN_PROGRESS"
	PeriodStatusCompleted  = "COMPLETED"
	PeriodStatusMissed     = "MISSED"
	PeriodStatusIncomplete = "INCOMPLETE"
)

// Incomplete reason codes recorded by the auto-mark sweep and consumed by the
// incomplete classifier.
const (
	IncompleteReasonMissedGrace    = "MISSED_GRACE_PERIOD"
	IncompleteReasonLateSubmission = "LATE_SUBMISSION"
	IncompleteReasonNoSubmission   = "NO_SUBMISSION"
)

// PeriodRecord is one scheduled occurrence of an assessment inside a
// multi-period lesson. The engine reads these records and derives view state
// from them; only the mark-complete mutation and the background sweeps write.
type PeriodRecord struct {
	ProgressID               uint           `gorm:"primaryKey" json:"progress_id"`
	StudentID                uint           `gorm:"not null;index" json:"student_id"`
	SubjectID                uint           `gorm:"index" json:"subject_id"`
	SubjectName              string         `gorm:"size:255" json:"subject_name"`
	LessonTopicID            uint           `gorm:"not null;index" json:"lesson_topic_id"`
	LessonTopicTitle         string         `gorm:"size:255" json:"lesson_topic_title"`
	TeacherID                uint           `gorm:"index" json:"teacher_id"`
	PeriodSequence           int            `gorm:"not null" json:"period_sequence"`
	TotalPeriodsInSequence   int            `json:"total_periods_in_sequence"`
	ScheduledDate            time.Time      `gorm:"not null;index" json:"scheduled_date"`
	DayOfWeek                string         `gorm:"size:16" json:"day_of_week"`
	PeriodNumber             int            `json:"period_number"`
	StartTime                string         `gorm:"size:8" json:"start_time"`
	EndTime                  string         `gorm:"size:8" json:"end_time"`
	AssessmentID             *uint          `gorm:"index" json:"assessment_id"`
	AssessmentWindowStart    *time.Time     `json:"assessment_window_start"`
	AssessmentWindowEnd      *time.Time     `json:"assessment_window_end"`
	GracePeriodEnd           *time.Time     `json:"grace_period_end"`
	Status                   string         `gorm:"size:32;not null;default:SCHEDULED" json:"status"`
	Score                    *float64       `json:"score"`
	MaxScore                 *float64       `json:"max_score"`
	CompletedAt              *time.Time     `json:"completed_at"`
	SubmittedAt              *time.Time     `json:"submitted_at"`
	IncompleteReason         string         `gorm:"size:100" json:"incomplete_reason"`
	AutoMarkedIncompleteAt   *time.Time     `json:"auto_marked_incomplete_at"`
	CanStillComplete         bool           `json:"can_still_complete"`
	RequiresCustomAssessment bool           `json:"requires_custom_assessment"`
	AssessmentCreated        bool           `json:"assessment_created"`
	LinkedProgressIDs        datatypes.JSON `json:"linked_progress_ids"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

// TableName keeps the table name aligned with the academic schema naming.
func (PeriodRecord) TableName() string {
	return "period_records"
}

// IsCompleted reports whether the period reached a completed outcome.
func (p PeriodRecord) IsCompleted() bool {
	return p.Status == PeriodStatusCompleted
}

// IsIncomplete reports whether the period ended without completion.
func (p PeriodRecord) IsIncomplete() bool {
	return p.Status == PeriodStatusMissed || p.Status == PeriodStatusIncomplete
}

// IsPending reports whether the period still awaits an outcome.
func (p PeriodRecord) IsPending() bool {
	return p.Status == PeriodStatusScheduled || p.Status == PeriodStatusInProgress
}

// HasAssessment reports whether a teacher has authored an assessment for this
// period. Window bounds are meaningless without one.
func (p PeriodRecord) HasAssessment() bool {
	return p.AssessmentID != nil
}

// EffectiveGraceEnd returns the grace deadline, falling back to the window end
// when no explicit grace period was configured.
func (p PeriodRecord) EffectiveGraceEnd() *time.Time {
	if p.GracePeriodEnd != nil {
		return p.GracePeriodEnd
	}
	return p.AssessmentWindowEnd
}

// SubmissionRecorded reports whether the student ever began a submission.
func (p PeriodRecord) SubmissionRecorded() bool {
	return p.SubmittedAt != nil
}
