package reputation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
)

func agentWithLastTrace(score float64, traceAt time.Time) agent.Agent {
	a := agent.NewDefault("", "Agent", agent.CategoryCoding)
	a.Dimensions = agent.Dimensions{
		Reliability: score, Security: score, Speed: score,
		CostEfficiency: score, Consistency: score,
	}
	a.TrustScore = score
	a.LastTraceAt = &traceAt
	return a
}

func TestApplyDecayNoopWithinDormantWindow(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	a := agentWithLastTrace(70, now.Add(-1*time.Hour))

	decayed, event := ApplyDecay(cfg, a, now)
	require.Nil(t, event)
	require.Equal(t, 70.0, decayed.TrustScore)
}

func TestApplyDecayCompoundsPerDay(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	a := agentWithLastTrace(70, now.Add(-100*24*time.Hour))

	decayed, event := ApplyDecay(cfg, a, now)
	require.NotNil(t, event)

	retained := math.Pow(1-cfg.DecayPerDay, 100)
	want := cfg.DecayBaseline + (70-cfg.DecayBaseline)*retained
	require.InDelta(t, want, decayed.TrustScore, 0.01)
	require.InDelta(t, 68.1, decayed.TrustScore, 0.1)
}

func TestApplyDecayConvergesTowardBaselineOverLongDormancy(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	a := agentWithLastTrace(70, now.Add(-1000*24*time.Hour))

	decayed, event := ApplyDecay(cfg, a, now)
	require.NotNil(t, event)
	require.InDelta(t, 57.4, decayed.TrustScore, 0.1)
	require.Greater(t, decayed.TrustScore, cfg.DecayBaseline)
}

func TestApplyDecayNeverOvershootsBaseline(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	a := agentWithLastTrace(70, now.Add(-100000*24*time.Hour))

	decayed, _ := ApplyDecay(cfg, a, now)
	require.InDelta(t, cfg.DecayBaseline, decayed.TrustScore, 0.01)
}
