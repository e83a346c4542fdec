// Package endorsement models the directed, immutable Sybil-weighted
// endorsement edge between two agents.
package endorsement

import "time"

// Endorsement is a directed edge endorser -> target, immutable once
// written, unique per (endorser_id, target_id).
type Endorsement struct {
	ID              string
	EndorserID      string
	TargetID        string
	EndorserScore   float64 // snapshot at endorsement time
	EndorserTraces  int     // snapshot
	EndorserTier    string  // snapshot
	BonusApplied    float64
	TierMultiplier  float64
	Context         string
	CreatedAt       time.Time
}
