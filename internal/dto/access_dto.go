package dto

import "time"

// Access status codes returned to the frontend by the access check endpoint.
const (
	AccessAllowed          = "ALLOWED"
	AccessNotYetOpen       = "NOT_YET_OPEN"
	AccessExpired          = "EXPIRED"
	AccessNoAssessment     = "NO_ASSESSMENT"
	AccessAlreadySubmitted = "ALREADY_SUBMITTED"
	AccessBlocked          = "BLOCKED"
)

// AccessCheckResult is the server-computed counterpart of the window state
// machine: same decision, coarser (minute) granularity. The two derivations
// share one pure function, so they cannot silently diverge.
type AccessCheckResult struct {
	CanAccess         bool       `json:"can_access"`
	StatusCode        string     `json:"status_code"`
	Reason            string     `json:"reason,omitempty"`
	WindowStart       *time.Time `json:"window_start,omitempty"`
	WindowEnd         *time.Time `json:"window_end,omitempty"`
	CurrentTime       time.Time  `json:"current_time"`
	MinutesUntilOpen  *int64     `json:"minutes_until_open,omitempty"`
	MinutesRemaining  *int64     `json:"minutes_remaining,omitempty"`
	GracePeriodActive bool       `json:"grace_period_active"`
}

// BlockReason explains why a period is not actionable even though it exists.
type BlockReason string

const (
	// BlockPreviousPeriodIncomplete gates a period on the completion of the
	// one before it in the lesson sequence.
	BlockPreviousPeriodIncomplete BlockReason = "PREVIOUS_PERIOD_INCOMPLETE"
	// BlockWaitingForTeacher gates a period on the teacher authoring its
	// custom follow-up assessment.
	BlockWaitingForTeacher BlockReason = "WAITING_FOR_TEACHER"
	// BlockDataUnavailable is the fail-closed reason used when dependency
	// data is missing; the UI shows a retry affordance, not a countdown.
	BlockDataUnavailable BlockReason = "DATA_UNAVAILABLE"
	// BlockWindowClosed indicates the period's own window has passed.
	BlockWindowClosed BlockReason = "WINDOW_CLOSED"
	// BlockNoAssessment indicates no assessment has been authored yet.
	BlockNoAssessment BlockReason = "NO_ASSESSMENT"
	// BlockNotYetOpen indicates the period's own window has not started.
	BlockNotYetOpen BlockReason = "NOT_YET_OPEN"
)

// AccessDecision is the single value the presentation layer may branch on
// for "can the student click Start".
type AccessDecision struct {
	Actionable  bool         `json:"actionable"`
	BlockReason *BlockReason `json:"block_reason,omitempty"`
	Window      WindowState  `json:"window"`
}
