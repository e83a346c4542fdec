package decaysweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/storage/agentlock"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

func TestRunDecaysDormantAgentsOnly(t *testing.T) {
	store := memory.New()

	dormant := agent.NewDefault("", "Dormant", agent.CategoryCoding)
	dormant.TrustScore = 70
	dormant.Dimensions = agent.Dimensions{Reliability: 70, Security: 70, Speed: 70, CostEfficiency: 70, Consistency: 70}
	past := time.Now().UTC().Add(-100 * 24 * time.Hour)
	dormant.LastTraceAt = &past
	createdDormant, err := store.CreateAgent(context.Background(), dormant)
	require.NoError(t, err)

	active := agent.NewDefault("", "Active", agent.CategoryResearch)
	active.TrustScore = 70
	active.Dimensions = agent.Dimensions{Reliability: 70, Security: 70, Speed: 70, CostEfficiency: 70, Consistency: 70}
	recent := time.Now().UTC().Add(-1 * time.Hour)
	active.LastTraceAt = &recent
	createdActive, err := store.CreateAgent(context.Background(), active)
	require.NoError(t, err)

	sweeper := New(store, agentlock.New(16), reputation.DefaultConfig(), logger.NewDefault("test"))
	require.NoError(t, sweeper.Run(context.Background()))

	updatedDormant, err := store.GetAgent(context.Background(), createdDormant.ID)
	require.NoError(t, err)
	require.Less(t, updatedDormant.TrustScore, 70.0)

	updatedActive, err := store.GetAgent(context.Background(), createdActive.ID)
	require.NoError(t, err)
	require.Equal(t, 70.0, updatedActive.TrustScore)
}
