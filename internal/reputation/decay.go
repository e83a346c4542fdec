package reputation

import (
	"math"
	"time"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
)

// ApplyDecay pulls each dimensional score toward the baseline, compounding
// DecayPerDay once per elapsed day since the agent's last trace: after d
// days the surviving fraction of the original gap to baseline is
// (1-DecayPerDay)^d. It is a no-op if the agent has no last_trace_at, or it
// is within DecayDormantFor of now. Decay never overshoots past the
// baseline.
func ApplyDecay(cfg Config, ag agent.Agent, now time.Time) (agent.Agent, *Event) {
	if ag.LastTraceAt == nil {
		return ag, nil
	}
	elapsed := now.Sub(*ag.LastTraceAt)
	if elapsed < cfg.DecayDormantFor {
		return ag, nil
	}

	days := elapsed.Hours() / 24
	retained := math.Pow(1-cfg.DecayPerDay, days)
	pull := 1 - retained
	if pull > 1 {
		pull = 1
	}

	scoreBefore := ag.Dimensions.Composite()

	ag.Dimensions.Reliability = decayToward(ag.Dimensions.Reliability, cfg.DecayBaseline, pull)
	ag.Dimensions.Security = decayToward(ag.Dimensions.Security, cfg.DecayBaseline, pull)
	ag.Dimensions.Speed = decayToward(ag.Dimensions.Speed, cfg.DecayBaseline, pull)
	ag.Dimensions.CostEfficiency = decayToward(ag.Dimensions.CostEfficiency, cfg.DecayBaseline, pull)
	ag.Dimensions.Consistency = decayToward(ag.Dimensions.Consistency, cfg.DecayBaseline, pull)
	ag.Dimensions.Clamp()

	ag.TrustScore = ag.Dimensions.Composite()
	ag.Tier = agent.TierForScore(ag.TrustScore)
	ag.UpdatedAt = now

	if ag.TrustScore == scoreBefore {
		return ag, nil
	}
	return ag, &Event{Kind: EventScoreChange, Occurred: now, Message: "trust score decayed toward baseline"}
}

// decayToward moves v a fraction pull of the way to target, never crossing
// past target.
func decayToward(v, target, pull float64) float64 {
	next := v + (target-v)*pull
	if v < target && next > target {
		return target
	}
	if v > target && next < target {
		return target
	}
	return next
}
