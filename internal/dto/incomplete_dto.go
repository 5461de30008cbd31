package dto

import "time"

// IncompleteClassification partitions non-completed periods into reason
// categories with whole-percent breakdowns. An empty input yields zero
// percentages, never a division error.
type IncompleteClassification struct {
	ByReason    map[string][]MissedPeriod `json:"by_reason"`
	Total       int                       `json:"total"`
	Percentages map[string]int            `json:"percentages"`
	Urgency     UrgencyBuckets            `json:"urgency"`
	From        *time.Time                `json:"from,omitempty"`
	To          *time.Time                `json:"to,omitempty"`
}

// UrgencyBuckets counts incomplete periods by how many days overdue they are:
// low 0, medium 1-3, high 4-7, critical 8+.
type UrgencyBuckets struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}
