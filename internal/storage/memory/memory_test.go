package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/reputation"
)

func TestListRecentHistoryReturnsNewestFirstAcrossAgents(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.InsertHistory(ctx, reputation.HistoryEntry{AgentID: "agent-a", EventType: reputation.EventTraceRecorded})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.InsertHistory(ctx, reputation.HistoryEntry{AgentID: "agent-b", EventType: reputation.EventTraceRecorded})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.InsertHistory(ctx, reputation.HistoryEntry{AgentID: "agent-a", EventType: reputation.EventEndorsement})
	require.NoError(t, err)

	entries, err := store.ListRecentHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, reputation.EventEndorsement, entries[0].EventType)
	require.Equal(t, "agent-b", entries[1].AgentID)
	require.Equal(t, "agent-a", entries[2].AgentID)
}

func TestListRecentHistoryRespectsLimit(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.InsertHistory(ctx, reputation.HistoryEntry{AgentID: "agent-a", EventType: reputation.EventTraceRecorded})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	entries, err := store.ListRecentHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
