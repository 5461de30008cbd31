package dto

import "time"

// WindowStatus is the derived access state of one period's assessment window.
type WindowStatus string

const (
	// WindowNoAssessment means no teacher-authored assessment exists yet, so
	// no time-based state applies.
	WindowNoAssessment WindowStatus = "NO_ASSESSMENT"
	// WindowNotYetOpen means the window has not started.
	WindowNotYetOpen WindowStatus = "NOT_YET_OPEN"
	// WindowOpen means the window is currently accepting submissions.
	WindowOpen WindowStatus = "OPEN"
	// WindowGrace means the nominal window has ended but the grace extension
	// still accepts submissions; the UI flags this state as urgent.
	WindowGrace WindowStatus = "GRACE"
	// WindowClosed means submissions are no longer accepted.
	WindowClosed WindowStatus = "CLOSED"
)

// WindowState is the ephemeral per-period value recomputed on every tick.
type WindowState struct {
	Status           WindowStatus `json:"status"`
	SecondsUntilOpen int64        `json:"seconds_until_open"`
	SecondsRemaining int64        `json:"seconds_remaining"`
}

// Actionable reports whether a student may start or continue the assessment
// in this state. NO_ASSESSMENT and CLOSED are never actionable.
func (w WindowState) Actionable() bool {
	return w.Status == WindowOpen || w.Status == WindowGrace
}

// WindowStateResponse is the presentation payload for one period's window.
type WindowStateResponse struct {
	ProgressID  uint        `json:"progress_id"`
	StudentID   uint        `json:"student_id"`
	State       WindowState `json:"state"`
	Countdown   string      `json:"countdown"`
	WindowStart *time.Time  `json:"window_start"`
	WindowEnd   *time.Time  `json:"window_end"`
	GraceEnd    *time.Time  `json:"grace_end"`
	LocalStart  string      `json:"local_start,omitempty"`
	LocalEnd    string      `json:"local_end,omitempty"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// WindowSnapshot is one frame of a live countdown stream. RefreshSeq counts
// authority refreshes so subscribers can tell cached bounds from fresh ones;
// LastError carries the most recent fetch failure until a refresh succeeds.
type WindowSnapshot struct {
	ProgressID  uint        `json:"progress_id"`
	State       WindowState `json:"state"`
	Countdown   string      `json:"countdown"`
	RefreshSeq  uint64      `json:"refresh_seq"`
	RefreshedAt time.Time   `json:"refreshed_at"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
	LastError   string      `json:"last_error,omitempty"`
}
