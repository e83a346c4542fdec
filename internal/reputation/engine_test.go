package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
)

func freshAgent() agent.Agent {
	return agent.NewDefault("agent-1", "Test Agent", agent.CategoryCoding)
}

func TestApplyTraceFreshAgentIsDampened(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	now := time.Now().UTC()

	updated, events := ApplyTrace(cfg, ag, trace.Trace{
		AgentID:    ag.ID,
		Status:     trace.StatusSuccess,
		DurationMs: 5000,
		Category:   "coding",
	}, now)

	require.Equal(t, 1, updated.TotalTraces)
	require.InDelta(t, 100.0, updated.SuccessRate*100, 0.001)

	// alpha_eff = 0.3 * 0.5 = 0.15; reliability obs = 100 (streak bonus 0
	// since consecutive_successes was 0 going in); ema' = 0.15*100+0.85*50.
	require.InDelta(t, 57.5, updated.Dimensions.Reliability, 0.01)
	// speed obs: bench=10000, duration=5000 -> ratio=2 (capped) -> 100.
	require.InDelta(t, 57.5, updated.Dimensions.Speed, 0.01)

	require.NotEmpty(t, events)
}

func TestApplyTraceFailureResetsStreak(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		ag, _ = ApplyTrace(cfg, ag, trace.Trace{
			AgentID:    ag.ID,
			Status:     trace.StatusSuccess,
			DurationMs: 5000,
			Category:   "coding",
		}, now)
	}
	require.Equal(t, 5, ag.ConsecutiveSuccesses)
	require.InDelta(t, 1.0, ag.SuccessRate, 0.0001)

	before := ag.Dimensions.Reliability
	ag, _ = ApplyTrace(cfg, ag, trace.Trace{
		AgentID:    ag.ID,
		Status:     trace.StatusFailure,
		DurationMs: 5000,
		Category:   "coding",
	}, now)

	require.Equal(t, 0, ag.ConsecutiveSuccesses)
	require.Less(t, ag.Dimensions.Reliability, before)
}

func TestApplyTraceDurationSpikeAnomaly(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	ag.TotalTraces = 15
	ag.AvgDurationMs = 1000
	ag.SuccessCount = 15
	ag.SuccessRate = 1.0
	now := time.Now().UTC()

	updated, events := ApplyTrace(cfg, ag, trace.Trace{
		AgentID:    ag.ID,
		Status:     trace.StatusSuccess,
		DurationMs: 10000,
		Category:   "coding",
	}, now)

	require.Len(t, updated.AnomalyFlags, 1)
	require.Equal(t, agent.AnomalyDurationSpike, updated.AnomalyFlags[0].Type)
	require.Equal(t, agent.SeverityWarning, updated.AnomalyFlags[0].Severity)

	found := false
	for _, e := range events {
		if e.Kind == EventAnomaly {
			found = true
		}
	}
	require.True(t, found)
}

func TestApplyTraceWarningAnomalyAutoArchivesAfterCleanStreak(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	ag.TotalTraces = 15
	ag.AvgDurationMs = 1000
	ag.SuccessCount = 15
	ag.SuccessRate = 1.0
	now := time.Now().UTC()

	ag, _ = ApplyTrace(cfg, ag, trace.Trace{
		AgentID: ag.ID, Status: trace.StatusSuccess, DurationMs: 10000, Category: "coding",
	}, now)
	require.Len(t, ag.AnomalyFlags, 1)
	require.False(t, ag.AnomalyFlags[0].Archived)

	for i := 0; i < cfg.AnomalyCleanStreakAuto; i++ {
		ag, _ = ApplyTrace(cfg, ag, trace.Trace{
			AgentID: ag.ID, Status: trace.StatusSuccess, DurationMs: 1000, Category: "coding",
		}, now)
	}

	require.True(t, ag.AnomalyFlags[0].Archived)
}

func TestApplyTraceCriticalAnomalyWhenTwoCoincide(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	ag.TotalTraces = 15
	ag.AvgDurationMs = 1000
	ag.TotalCostUSD = 15 * 0.01
	ag.SuccessCount = 15
	ag.SuccessRate = 1.0
	now := time.Now().UTC()

	cost := 1.0 // far above 10x the ~0.01 running average cost
	updated, _ := ApplyTrace(cfg, ag, trace.Trace{
		AgentID: ag.ID, Status: trace.StatusSuccess, DurationMs: 10000, CostUSD: &cost, Category: "coding",
	}, now)

	require.Len(t, updated.AnomalyFlags, 2)
	for _, f := range updated.AnomalyFlags {
		require.Equal(t, agent.SeverityCritical, f.Severity)
	}
}

func TestApplyTraceEveryDimensionStaysClamped(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	now := time.Now().UTC()

	for i := 0; i < 200; i++ {
		status := trace.StatusSuccess
		if i%7 == 0 {
			status = trace.StatusFailure
		}
		cost := 0.001
		ag, _ = ApplyTrace(cfg, ag, trace.Trace{
			AgentID: ag.ID, Status: status, DurationMs: 100, CostUSD: &cost, Category: "coding",
		}, now)

		require.GreaterOrEqual(t, ag.Dimensions.Reliability, 0.0)
		require.LessOrEqual(t, ag.Dimensions.Reliability, 100.0)
		require.GreaterOrEqual(t, ag.Dimensions.Speed, 0.0)
		require.LessOrEqual(t, ag.Dimensions.Speed, 100.0)
		require.GreaterOrEqual(t, ag.TrustScore, 0.0)
		require.LessOrEqual(t, ag.TrustScore, 100.0)
	}
}

func TestApplyTraceTierIsPureFunctionOfScore(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	now := time.Now().UTC()

	ag, _ = ApplyTrace(cfg, ag, trace.Trace{
		AgentID: ag.ID, Status: trace.StatusSuccess, DurationMs: 100, Category: "coding",
	}, now)

	require.Equal(t, agent.TierForScore(ag.TrustScore), ag.Tier)
}

func TestApplyDecayPullsTowardBaselineNeverOvershooting(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	ag.Dimensions = agent.Dimensions{Reliability: 70, Security: 70, Speed: 70, CostEfficiency: 70, Consistency: 70}
	ag.TrustScore = 70
	past := time.Now().UTC().Add(-100 * 24 * time.Hour)
	ag.LastTraceAt = &past
	now := time.Now().UTC()

	updated, event := ApplyDecay(cfg, ag, now)

	require.NotNil(t, event)
	require.Less(t, updated.TrustScore, 70.0)
	require.Greater(t, updated.TrustScore, 50.0)
	require.InDelta(t, 68.1, updated.TrustScore, 1.0)
}

func TestApplyDecayNoopWhenRecentlyActive(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()
	recent := time.Now().UTC().Add(-1 * time.Hour)
	ag.LastTraceAt = &recent

	updated, event := ApplyDecay(cfg, ag, time.Now().UTC())

	require.Nil(t, event)
	require.Equal(t, ag.TrustScore, updated.TrustScore)
}

func TestApplyDecayNoopWithoutPriorTrace(t *testing.T) {
	cfg := DefaultConfig()
	ag := freshAgent()

	updated, event := ApplyDecay(cfg, ag, time.Now().UTC())

	require.Nil(t, event)
	require.Equal(t, ag.TrustScore, updated.TrustScore)
}
