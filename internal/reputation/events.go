package reputation

import "time"

// EventKind mirrors reputation.EventType for the events this package emits,
// kept local to avoid an import cycle (internal/domain/reputation imports
// nothing from here).
type EventKind string

const (
	EventScoreChange EventKind = "score_change"
	EventTierChange  EventKind = "tier_change"
	EventMilestone   EventKind = "milestone"
	EventAnomaly     EventKind = "anomaly"
)

// Event is one notable fact produced by ApplyTrace or ApplyDecay, destined
// for the ReputationHistory store and the webhook dispatcher.
type Event struct {
	Kind      EventKind
	Message   string
	Occurred  time.Time
}

// milestoneTraceCounts is the closed set of total_traces values that raise
// a milestone event.
var milestoneTraceCounts = map[int]bool{
	10: true, 50: true, 100: true, 500: true, 1000: true, 5000: true,
}
