// Package reputation implements the five-dimensional reputation engine as
// pure functions over (agent_state, new_trace) -> (new_agent_state,
// events). Nothing in this package touches storage or the network;
// ApplyTrace and ApplyDecay are deterministic given their inputs and the
// injected Config.
package reputation

import "time"

// Benchmark is the category-specific speed/cost benchmark table.
type Benchmark struct {
	SpeedMs float64
	CostUSD float64
}

// DefaultBenchmarks is the category benchmark table used when no override
// is configured.
func DefaultBenchmarks() map[string]Benchmark {
	return map[string]Benchmark{
		"coding":     {SpeedMs: 10000, CostUSD: 0.05},
		"research":   {SpeedMs: 15000, CostUSD: 0.08},
		"sales":      {SpeedMs: 5000, CostUSD: 0.03},
		"data":       {SpeedMs: 12000, CostUSD: 0.06},
		"automation": {SpeedMs: 8000, CostUSD: 0.04},
		"other":      {SpeedMs: 10000, CostUSD: 0.05},
	}
}

// Config is the injected, read-only configuration record the engine runs
// against -- never ambient/global state.
type Config struct {
	Benchmarks map[string]Benchmark

	Alpha float64 // EMA smoothing factor

	StreakBonusCap int // reliability streak bonus cap

	LowTraceThreshold int     // dampening applies below this trace count
	LowTraceDamping   float64 // dampening multiplier

	ConsistencyWindow int // rolling window of reliability observations

	AnomalyMinTraces       int     // anomalies only detected once total_traces >= this
	AnomalyDurationSpikeX  float64 // duration_ms > X * avg_duration_ms
	AnomalyCostSpikeX      float64 // cost_usd > X * avg_cost
	AnomalyFailureRateMin  float64 // unexpected_failure requires last-50 success rate >= this
	AnomalyCleanStreakAuto int     // warning flags auto-archive after this many clean traces

	DecayPerDay     float64       // fractional score decay applied per elapsed day
	DecayBaseline   float64       // score decay reverts toward this baseline
	DecayDormantFor time.Duration // decay only applies once an agent has been idle this long
}

// DefaultConfig is the engine's standard tuning: 0.3 EMA smoothing, a
// streak bonus capped at 10, dampening below 5 traces by 0.5x, a 20-trace
// consistency window, anomaly detection active from 10 traces on with a
// 5x duration spike, 10x cost spike, 0.90 minimum success rate, and
// warnings auto-archived after 50 clean traces; decay at 0.1%/day toward
// a baseline of 50 once an agent has been idle 24h.
func DefaultConfig() Config {
	return Config{
		Benchmarks:             DefaultBenchmarks(),
		Alpha:                  0.3,
		StreakBonusCap:         10,
		LowTraceThreshold:      5,
		LowTraceDamping:        0.5,
		ConsistencyWindow:      20,
		AnomalyMinTraces:       10,
		AnomalyDurationSpikeX:  5,
		AnomalyCostSpikeX:      10,
		AnomalyFailureRateMin:  0.90,
		AnomalyCleanStreakAuto: 50,
		DecayPerDay:            0.001,
		DecayBaseline:          50.0,
		DecayDormantFor:        24 * time.Hour,
	}
}
