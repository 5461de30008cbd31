package dto

import "time"

// PeriodProgress is the per-period view produced by the aggregator: the raw
// record fields the UI needs plus the derived window state and access
// decision for this instant.
type PeriodProgress struct {
	ProgressID               uint           `json:"progress_id"`
	PeriodSequence           int            `json:"period_sequence"`
	TotalPeriods             int            `json:"total_periods"`
	ScheduledDate            time.Time      `json:"scheduled_date"`
	PeriodNumber             int            `json:"period_number"`
	Status                   string         `json:"status"`
	Score                    *float64       `json:"score,omitempty"`
	MaxScore                 *float64       `json:"max_score,omitempty"`
	CompletedAt              *time.Time     `json:"completed_at,omitempty"`
	IncompleteReason         string         `json:"incomplete_reason,omitempty"`
	RequiresCustomAssessment bool           `json:"requires_custom_assessment"`
	AssessmentCreated        bool           `json:"assessment_created"`
	Decision                 AccessDecision `json:"decision"`
}

// LessonProgress groups the ordered periods of one lesson topic with its
// completion stats.
type LessonProgress struct {
	LessonTopicID        uint             `json:"lesson_topic_id"`
	LessonTopicTitle     string           `json:"lesson_topic_title"`
	SubjectID            uint             `json:"subject_id"`
	SubjectName          string           `json:"subject_name"`
	Periods              []PeriodProgress `json:"periods"`
	CompletedCount       int              `json:"completed_count"`
	IncompleteCount      int              `json:"incomplete_count"`
	ScheduledCount       int              `json:"scheduled_count"`
	CompletionPercentage int              `json:"completion_percentage"`
	IsFullyCompleted     bool             `json:"is_fully_completed"`
	AverageScore         *float64         `json:"average_score,omitempty"`
}

// UrgentPeriod is a pending, actionable period whose deadline falls within
// the urgency horizon, ordered soonest first.
type UrgentPeriod struct {
	ProgressID       uint      `json:"progress_id"`
	LessonTopicID    uint      `json:"lesson_topic_id"`
	LessonTopicTitle string    `json:"lesson_topic_title"`
	SubjectName      string    `json:"subject_name"`
	PeriodSequence   int       `json:"period_sequence"`
	Deadline         time.Time `json:"deadline"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

// MissedPeriod is a period that ended without completion.
type MissedPeriod struct {
	ProgressID       uint      `json:"progress_id"`
	LessonTopicID    uint      `json:"lesson_topic_id"`
	LessonTopicTitle string    `json:"lesson_topic_title"`
	SubjectName      string    `json:"subject_name"`
	PeriodSequence   int       `json:"period_sequence"`
	ScheduledDate    time.Time `json:"scheduled_date"`
	IncompleteReason string    `json:"incomplete_reason,omitempty"`
}

// SubjectRollup carries the same summary shape per subject.
type SubjectRollup struct {
	SubjectID             uint   `json:"subject_id"`
	SubjectName           string `json:"subject_name"`
	TotalLessons          int    `json:"total_lessons"`
	FullyCompleted        int    `json:"fully_completed"`
	PartiallyCompleted    int    `json:"partially_completed"`
	IncompleteLessons     int    `json:"incomplete_lessons"`
	ScheduledLessons      int    `json:"scheduled_lessons"`
	OverallCompletionRate int    `json:"overall_completion_rate"`
}

// Summary is the cross-lesson rollup for one student scope.
type Summary struct {
	TotalLessons          int             `json:"total_lessons"`
	FullyCompleted        int             `json:"fully_completed"`
	PartiallyCompleted    int             `json:"partially_completed"`
	IncompleteLessons     int             `json:"incomplete_lessons"`
	ScheduledLessons      int             `json:"scheduled_lessons"`
	OverallCompletionRate int             `json:"overall_completion_rate"`
	Subjects              []SubjectRollup `json:"subjects"`
	Urgent                []UrgentPeriod  `json:"urgent"`
	Missed                []MissedPeriod  `json:"missed"`
}

// StudentProgressResponse is the payload for the student progress endpoint.
type StudentProgressResponse struct {
	Lessons  []LessonProgress `json:"lessons"`
	Summary  Summary          `json:"summary"`
	CacheHit bool             `json:"cache_hit"`
}

// ProgressQuery scopes a progress or incomplete request.
type ProgressQuery struct {
	StudentID uint       `validate:"required,gt=0"`
	SubjectID *uint      `validate:"omitempty,gt=0"`
	From      *time.Time `validate:"omitempty"`
	To        *time.Time `validate:"omitempty"`
}

// MarkCompleteRequest records a completion outcome for one period.
type MarkCompleteRequest struct {
	Score       *float64 `json:"score" validate:"omitempty,gte=0"`
	MaxScore    *float64 `json:"max_score" validate:"omitempty,gt=0"`
	SubmittedAt string   `json:"submitted_at" validate:"omitempty"`
}

// WaitingPeriod is one entry in the teacher's custom-assessment queue.
type WaitingPeriod struct {
	ProgressID       uint       `json:"progress_id"`
	StudentID        uint       `json:"student_id"`
	LessonTopicID    uint       `json:"lesson_topic_id"`
	LessonTopicTitle string     `json:"lesson_topic_title"`
	SubjectName      string     `json:"subject_name"`
	PeriodSequence   int        `json:"period_sequence"`
	ScheduledDate    time.Time  `json:"scheduled_date"`
	PreviousScore    *float64   `json:"previous_score,omitempty"`
	PreviousDoneAt   *time.Time `json:"previous_done_at,omitempty"`
}
