package verdict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
)

func TestVerdictTrustedRequiresVerifiedAndNoAnomaly(t *testing.T) {
	store := memory.New()
	a := agent.NewDefault("", "Agent", agent.CategoryCoding)
	a.TrustScore = 80
	a.TotalTraces = 20
	created, err := store.CreateAgent(context.Background(), a)
	require.NoError(t, err)

	svc := New(store, reputation.DefaultConfig())
	v, err := svc.Verdict(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, RecommendationTrusted, v.Recommendation)
	require.Equal(t, RiskLow, v.RiskLevel)
}

func TestVerdictDoNotDelegateBelowTwentyFive(t *testing.T) {
	store := memory.New()
	a := agent.NewDefault("", "Agent", agent.CategoryCoding)
	a.TrustScore = 10
	created, err := store.CreateAgent(context.Background(), a)
	require.NoError(t, err)

	svc := New(store, reputation.DefaultConfig())
	v, err := svc.Verdict(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, RecommendationDoNotDelegate, v.Recommendation)
	require.Equal(t, RiskCritical, v.RiskLevel)
}

func TestVerdictFoldsEndorsementBonusIntoTrustScore(t *testing.T) {
	store := memory.New()
	a := agent.NewDefault("", "Agent", agent.CategoryCoding)
	a.TrustScore = 89
	a.Tier = agent.TierGold
	a.TotalTraces = 20
	a.EndorsementScore = 2
	created, err := store.CreateAgent(context.Background(), a)
	require.NoError(t, err)

	svc := New(store, reputation.DefaultConfig())
	v, err := svc.Verdict(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, 91.0, v.TrustScore)
	require.Equal(t, agent.TierEnterprise, v.CertificationTier)
}

func TestVerdictClampsEndorsementBonusAtOneHundred(t *testing.T) {
	store := memory.New()
	a := agent.NewDefault("", "Agent", agent.CategoryCoding)
	a.TrustScore = 99
	a.TotalTraces = 20
	a.EndorsementScore = 5
	created, err := store.CreateAgent(context.Background(), a)
	require.NoError(t, err)

	svc := New(store, reputation.DefaultConfig())
	v, err := svc.Verdict(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, v.TrustScore)
}

func TestRouteExcludesSandboxAndCriticalAnomalies(t *testing.T) {
	store := memory.New()

	good := agent.NewDefault("", "Good", agent.CategoryCoding)
	good.TrustScore = 90
	good.Tier = agent.TierGold
	good.TotalTraces = 30
	_, err := store.CreateAgent(context.Background(), good)
	require.NoError(t, err)

	sandboxed := agent.NewDefault("", "Sandbox", agent.CategoryCoding)
	sandboxed.TrustScore = 95
	sandboxed.Tier = agent.TierEnterprise
	sandboxed.IsSandbox = true
	_, err = store.CreateAgent(context.Background(), sandboxed)
	require.NoError(t, err)

	flagged := agent.NewDefault("", "Flagged", agent.CategoryCoding)
	flagged.TrustScore = 95
	flagged.Tier = agent.TierEnterprise
	flagged.AnomalyFlags = []agent.AnomalyFlag{{Type: agent.AnomalyCostSpike, Severity: agent.SeverityCritical}}
	_, err = store.CreateAgent(context.Background(), flagged)
	require.NoError(t, err)

	svc := New(store, reputation.DefaultConfig())
	results, err := svc.Route(context.Background(), agent.CategoryCoding, agent.TierBronze, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Good", results[0].Name)
}
