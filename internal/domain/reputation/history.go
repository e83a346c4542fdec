// Package reputation models the append-only reputation history ledger
// (one row per event that moved an agent's score).
package reputation

import "time"

// EventType is the closed set of event kinds that can append a history
// row or trigger a webhook.
type EventType string

const (
	EventTraceRecorded EventType = "trace_recorded"
	EventScoreChange   EventType = "score_change"
	EventMilestone     EventType = "milestone"
	EventAnomaly       EventType = "anomaly"
	EventTierChange    EventType = "tier_change"
	EventEndorsement   EventType = "endorsement"
	EventDecay         EventType = "decay"
)

// HistoryEntry is one append-only row in reputation_history.
type HistoryEntry struct {
	ID         string
	AgentID    string
	TrustScore float64
	Reliability,
	Security,
	Speed,
	CostEfficiency,
	Consistency float64
	EventType  EventType
	TrustDelta float64
	AnomalyRef *string // links to the anomaly flag this entry recorded, if any
	CreatedAt  time.Time
}

// Milestones is the closed set of trace counts that fire a milestone event.
var Milestones = map[int]bool{
	10:   true,
	50:   true,
	100:  true,
	500:  true,
	1000: true,
	5000: true,
}
