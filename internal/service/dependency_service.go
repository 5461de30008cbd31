package service

import (
	"sort"
	"time"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/models"
)

// Resolution is the outcome of resolving one lesson's period chain: the
// single period the student may act on right now, or the reason the chain is
// blocked. Both can be nil for a lesson whose periods are all resolved.
type Resolution struct {
	ActionablePeriod *models.PeriodRecord
	BlockedReason    *dto.BlockReason
}

// SortLessonPeriods orders a lesson group by (scheduledDate, periodNumber).
// This ordering is the canonical period sequence every other derivation
// consumes.
func SortLessonPeriods(periods []models.PeriodRecord) {
	sort.SliceStable(periods, func(i, j int) bool {
		if !periods[i].ScheduledDate.Equal(periods[j].ScheduledDate) {
			return periods[i].ScheduledDate.Before(periods[j].ScheduledDate)
		}
		return periods[i].PeriodNumber < periods[j].PeriodNumber
	})
}

// DecidePeriods derives the access decision for every period of one sorted
// lesson group. Positions after the first defer to the previous period:
// an unfinished predecessor blocks outright, then a missing custom follow-up
// assessment blocks, and only then does the period's own window apply. A gap
// in the sequence (the predecessor record is absent) fails closed with
// DATA_UNAVAILABLE, never open.
func DecidePeriods(periods []models.PeriodRecord, now time.Time) []dto.AccessDecision {
	decisions := make([]dto.AccessDecision, len(periods))

	for i, period := range periods {
		state := ComputeWindowStateFor(period, now)
		decision := dto.AccessDecision{Window: state}

		switch {
		case !period.IsPending():
			// Outcome already reached; nothing left to act on.
		case i > 0 && periods[i-1].PeriodSequence != period.PeriodSequence-1:
			decision.BlockReason = blockReasonPtr(dto.BlockDataUnavailable)
		case i == 0 && period.PeriodSequence > 1:
			decision.BlockReason = blockReasonPtr(dto.BlockDataUnavailable)
		case i > 0 && !periods[i-1].IsCompleted():
			decision.BlockReason = blockReasonPtr(dto.BlockPreviousPeriodIncomplete)
		case period.PeriodSequence > 1 && period.RequiresCustomAssessment && !period.AssessmentCreated:
			decision.BlockReason = blockReasonPtr(dto.BlockWaitingForTeacher)
		case state.Actionable():
			decision.Actionable = true
		default:
			decision.BlockReason = blockReasonPtr(windowBlockReason(state.Status))
		}

		decisions[i] = decision
	}

	return decisions
}

// ResolveLesson reduces one sorted lesson group to at most one actionable
// period. The first actionable period in sequence wins, so a student can
// never start period 3 while period 2 is unresolved even when overlapping
// schedules leave period 3's window already open.
func ResolveLesson(periods []models.PeriodRecord, now time.Time) Resolution {
	decisions := DecidePeriods(periods, now)

	var firstBlock *dto.BlockReason
	for i, decision := range decisions {
		if decision.Actionable {
			period := periods[i]
			return Resolution{ActionablePeriod: &period}
		}
		if firstBlock == nil && decision.BlockReason != nil && periods[i].IsPending() {
			firstBlock = decision.BlockReason
		}
	}

	return Resolution{BlockedReason: firstBlock}
}

// ResolveLessons resolves many lesson groups keyed by lesson topic id.
func ResolveLessons(lessons map[uint][]models.PeriodRecord, now time.Time) map[uint]Resolution {
	resolutions := make(map[uint]Resolution, len(lessons))
	for topicID, periods := range lessons {
		resolutions[topicID] = ResolveLesson(periods, now)
	}
	return resolutions
}

func windowBlockReason(status dto.WindowStatus) dto.BlockReason {
	switch status {
	case dto.WindowNoAssessment:
		return dto.BlockNoAssessment
	case dto.WindowNotYetOpen:
		return dto.BlockNotYetOpen
	default:
		return dto.BlockWindowClosed
	}
}

func blockReasonPtr(reason dto.BlockReason) *dto.BlockReason {
	return &reason
}
