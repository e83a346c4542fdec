package reputation

import (
	"math"
	"time"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
)

const recentOutcomesWindow = 50

// ApplyTrace folds one validated trace into an agent's reputation state.
// It is a pure function: callers own persistence and transactional scope
// (internal/pipeline).
func ApplyTrace(cfg Config, ag agent.Agent, t trace.Trace, now time.Time) (agent.Agent, []Event) {
	var events []Event

	scoreBefore := ag.Dimensions.Composite()
	tierBefore := ag.Tier

	prevAvgDurationMs := ag.AvgDurationMs
	prevAvgCostUSD := 0.0
	if ag.TotalTraces > 0 {
		prevAvgCostUSD = ag.TotalCostUSD / float64(ag.TotalTraces)
	}
	prevSuccessRate50 := recentSuccessRate(ag.RecentOutcomes)

	damp := 1.0
	if ag.TotalTraces < cfg.LowTraceThreshold {
		damp = cfg.LowTraceDamping
	}

	relObs, streakAfter := reliabilityObservation(cfg, ag, t)
	ag.Dimensions.Reliability = ema(ag.Dimensions.Reliability, relObs, cfg.Alpha*damp)

	if bench, ok := cfg.Benchmarks[t.Category]; ok && t.DurationMs > 0 {
		obs := speedLikeObservation(bench.SpeedMs, float64(t.DurationMs))
		ag.Dimensions.Speed = ema(ag.Dimensions.Speed, obs, cfg.Alpha*damp)
	}
	if bench, ok := cfg.Benchmarks[t.Category]; ok && t.CostUSD != nil {
		obs := speedLikeObservation(bench.CostUSD, *t.CostUSD)
		ag.Dimensions.CostEfficiency = ema(ag.Dimensions.CostEfficiency, obs, cfg.Alpha*damp)
	}

	secObs := securityObservation(ag, t)
	ag.Dimensions.Security = ema(ag.Dimensions.Security, secObs, cfg.Alpha*damp)

	window := appendWindow(ag.RecentReliabilityObs, relObs, cfg.ConsistencyWindow)
	ag.RecentReliabilityObs = window
	consObs := consistencyObservation(window)
	ag.Dimensions.Consistency = ema(ag.Dimensions.Consistency, consObs, cfg.Alpha*damp)

	ag.Dimensions.Clamp()

	ag.ConsecutiveSuccesses = streakAfter
	ag.TotalTraces++
	if t.Status == trace.StatusSuccess {
		ag.SuccessCount++
	}
	ag.SuccessRate = float64(ag.SuccessCount) / float64(ag.TotalTraces)

	if ag.TotalTraces == 1 {
		ag.AvgDurationMs = float64(t.DurationMs)
	} else if t.DurationMs > 0 {
		ag.AvgDurationMs = runningAverage(prevAvgDurationMs, float64(t.DurationMs), ag.TotalTraces)
	}
	if t.CostUSD != nil {
		ag.TotalCostUSD += *t.CostUSD
	}

	tnow := now
	ag.LastTraceAt = &tnow
	ag.UpdatedAt = now

	ag.TrustScore = ag.Dimensions.Composite()
	ag.Tier = agent.TierForScore(ag.TrustScore)

	if math.Abs(ag.TrustScore-scoreBefore) >= 2 {
		events = append(events, Event{Kind: EventScoreChange, Occurred: now, Message: "trust score moved"})
	}
	if milestoneTraceCounts[ag.TotalTraces] {
		events = append(events, Event{Kind: EventMilestone, Occurred: now, Message: "milestone reached"})
	}
	if ag.Tier != tierBefore {
		events = append(events, Event{Kind: EventTierChange, Occurred: now, Message: "certification tier changed"})
	}

	traceWasAnomalous := false
	if ag.TotalTraces >= cfg.AnomalyMinTraces {
		flags := detectAnomalies(cfg, t, prevAvgDurationMs, prevAvgCostUSD, prevSuccessRate50, now)
		for _, f := range flags {
			ag.AnomalyFlags = append(ag.AnomalyFlags, f)
			events = append(events, Event{Kind: EventAnomaly, Occurred: now, Message: string(f.Type)})
		}
		traceWasAnomalous = len(flags) > 0
	}

	ag.RecentOutcomes = appendOutcome(ag.RecentOutcomes, t.Status == trace.StatusSuccess)
	ag = advanceCleanStreaks(cfg, ag, traceWasAnomalous)

	return ag, events
}

// detectAnomalies evaluates the three closed anomaly checks against the
// agent's state as it stood BEFORE this trace. Severity is critical when
// two or more distinct types coincide on this one trace.
func detectAnomalies(cfg Config, t trace.Trace, prevAvgDurationMs, prevAvgCostUSD, prevSuccessRate50 float64, now time.Time) []agent.AnomalyFlag {
	var types []agent.AnomalyType

	if t.Status == trace.StatusFailure && prevSuccessRate50 >= cfg.AnomalyFailureRateMin {
		types = append(types, agent.AnomalyUnexpectedFailure)
	}
	if prevAvgDurationMs > 0 && float64(t.DurationMs) > cfg.AnomalyDurationSpikeX*prevAvgDurationMs {
		types = append(types, agent.AnomalyDurationSpike)
	}
	if t.CostUSD != nil && prevAvgCostUSD > 0 && *t.CostUSD > cfg.AnomalyCostSpikeX*prevAvgCostUSD {
		types = append(types, agent.AnomalyCostSpike)
	}

	if len(types) == 0 {
		return nil
	}

	severity := agent.SeverityWarning
	if len(types) >= 2 {
		severity = agent.SeverityCritical
	}

	flags := make([]agent.AnomalyFlag, 0, len(types))
	for _, ty := range types {
		flags = append(flags, agent.AnomalyFlag{
			Type:       ty,
			Severity:   severity,
			Message:    anomalyMessage(ty),
			DetectedAt: now,
		})
	}
	return flags
}

func anomalyMessage(t agent.AnomalyType) string {
	switch t {
	case agent.AnomalyUnexpectedFailure:
		return "failure despite strong recent success rate"
	case agent.AnomalyDurationSpike:
		return "duration far exceeds running average"
	case agent.AnomalyCostSpike:
		return "cost far exceeds running average"
	default:
		return string(t)
	}
}

// advanceCleanStreaks increments every active warning flag's clean streak
// when this trace raised no new anomaly, archiving it once the streak
// reaches the configured threshold; a trace that itself raised an anomaly
// resets every other active warning flag's streak to 0. Critical flags
// never auto-clear.
func advanceCleanStreaks(cfg Config, ag agent.Agent, traceWasAnomalous bool) agent.Agent {
	for i := range ag.AnomalyFlags {
		f := &ag.AnomalyFlags[i]
		if f.Archived || f.Severity != agent.SeverityWarning {
			continue
		}
		if traceWasAnomalous {
			f.CleanStreak = 0
			continue
		}
		f.CleanStreak++
		if f.CleanStreak >= cfg.AnomalyCleanStreakAuto {
			f.Archived = true
		}
	}
	return ag
}

func ema(prev, observation, alpha float64) float64 {
	return alpha*observation + (1-alpha)*prev
}

func runningAverage(prevAvg, sample float64, countAfterIncluding int) float64 {
	n := float64(countAfterIncluding)
	return prevAvg + (sample-prevAvg)/n
}

func recentSuccessRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 1 // no history yet: treat as reliable, consistent with a fresh agent having no prior failures
	}
	successes := 0
	for _, o := range outcomes {
		if o {
			successes++
		}
	}
	return float64(successes) / float64(len(outcomes))
}

func appendOutcome(outcomes []bool, success bool) []bool {
	out := append(outcomes, success)
	if len(out) > recentOutcomesWindow {
		out = out[len(out)-recentOutcomesWindow:]
	}
	return out
}

// reliabilityObservation computes the per-trace reliability observation and
// the consecutive-success streak value to store after this trace.
func reliabilityObservation(cfg Config, ag agent.Agent, t trace.Trace) (obs float64, streakAfter int) {
	var base float64
	switch t.Status {
	case trace.StatusSuccess:
		base = 100
	case trace.StatusPartial:
		base = 60
	case trace.StatusFailure:
		base = 0
	}

	streakAfter = ag.ConsecutiveSuccesses
	if t.Status == trace.StatusSuccess {
		streakAfter++
	} else if t.Status == trace.StatusFailure {
		streakAfter = 0
	}

	bonus := float64(ag.ConsecutiveSuccesses)
	if bonus > float64(cfg.StreakBonusCap) {
		bonus = float64(cfg.StreakBonusCap)
	}
	obs = base + bonus
	if obs > 100 {
		obs = 100
	}
	return obs, streakAfter
}

// speedLikeObservation is the shared benchmark-ratio shape used by both the
// speed and cost_efficiency dimensions: meeting benchmark scores 50, twice
// as good as benchmark scores 100, far worse approaches 0.
func speedLikeObservation(benchmark, actual float64) float64 {
	if actual <= 0 {
		actual = 1
	}
	ratio := benchmark / actual
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 2 {
		ratio = 2
	}
	return 100 * ratio / 2
}

func securityObservation(ag agent.Agent, t trace.Trace) float64 {
	obs := 50.0
	if len(t.DeclaredPermissions) > 0 && withinPermissions(ag.Permissions, t.DeclaredPermissions) {
		obs += 2
	}
	if t.SecurityFlagged {
		obs -= 10
	}
	if obs < 0 {
		obs = 0
	}
	if obs > 100 {
		obs = 100
	}
	return obs
}

func withinPermissions(granted, declared []string) bool {
	allowed := make(map[string]bool, len(granted))
	for _, g := range granted {
		allowed[g] = true
	}
	for _, d := range declared {
		if !allowed[d] {
			return false
		}
	}
	return true
}

func appendWindow(window []float64, obs float64, size int) []float64 {
	out := append(window, obs)
	if len(out) > size {
		out = out[len(out)-size:]
	}
	return out
}

func consistencyObservation(window []float64) float64 {
	if len(window) < 2 {
		return 50
	}
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(window))
	stdev := math.Sqrt(variance)
	if stdev > 50 {
		stdev = 50
	}
	return 100 - stdev
}
