package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/signing"
	"github.com/garl-network/trust-ledger/internal/storage/agentlock"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

func testService(t *testing.T) (*Service, *memory.Store, agent.Agent) {
	t.Helper()
	store := memory.New()
	keys, err := signing.Generate()
	require.NoError(t, err)

	apiKey := "test-key"
	hash := sha256.Sum256([]byte(apiKey))
	keyHash := hex.EncodeToString(hash[:])

	ag := agent.NewDefault("", "Test Agent", agent.CategoryCoding)
	ag.APIKeyHash = keyHash
	created, err := store.CreateAgent(context.Background(), ag)
	require.NoError(t, err)

	svc := New(store, store, store, agentlock.New(16), keys, reputation.DefaultConfig(), nil, logger.NewDefault("test"))
	return svc, store, created
}

func TestSubmitAcceptsValidTrace(t *testing.T) {
	svc, _, ag := testService(t)

	res, err := svc.Submit(context.Background(), ag.APIKeyHash, trace.Trace{
		AgentID:         ag.ID,
		TaskDescription: "summarize a document",
		Status:          trace.StatusSuccess,
		DurationMs:      4000,
		Category:        "coding",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.TraceID)
	require.NotEmpty(t, res.Certificate.Proof.Signature)
}

func TestSubmitReplaysIdenticalResubmission(t *testing.T) {
	svc, store, ag := testService(t)

	tr := trace.Trace{
		AgentID:         ag.ID,
		TaskDescription: "summarize a document",
		Status:          trace.StatusSuccess,
		DurationMs:      4000,
		Category:        "coding",
	}
	first, err := svc.Submit(context.Background(), ag.APIKeyHash, tr)
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), ag.APIKeyHash, tr)
	require.NoError(t, err)
	require.Equal(t, first.TraceID, second.TraceID)
	require.Equal(t, first.Certificate.Proof.Signature, second.Certificate.Proof.Signature)

	entries, err := store.ListHistory(context.Background(), ag.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSubmitRejectsCrossAgentSubmission(t *testing.T) {
	svc, _, ag := testService(t)

	_, err := svc.Submit(context.Background(), ag.APIKeyHash, trace.Trace{
		AgentID:         "someone-else",
		TaskDescription: "summarize a document",
		Status:          trace.StatusSuccess,
		DurationMs:      4000,
		Category:        "coding",
	})
	require.Error(t, err)
}

func TestSubmitRejectsInvalidAPIKey(t *testing.T) {
	svc, _, ag := testService(t)

	_, err := svc.Submit(context.Background(), "wrong-key", trace.Trace{
		AgentID:         ag.ID,
		TaskDescription: "summarize a document",
		Status:          trace.StatusSuccess,
		DurationMs:      4000,
		Category:        "coding",
	})
	require.Error(t, err)
}

func TestSubmitMasksPIIOnRequest(t *testing.T) {
	svc, _, ag := testService(t)

	res, err := svc.Submit(context.Background(), ag.APIKeyHash, trace.Trace{
		AgentID:         ag.ID,
		TaskDescription: "summarize a document",
		Status:          trace.StatusSuccess,
		DurationMs:      4000,
		Category:        "coding",
		InputSummary:    "sensitive input",
		PIIMasked:       true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.TraceID)
}

func TestSubmitBatchRejectsOversizedBatch(t *testing.T) {
	svc, _, ag := testService(t)

	batch := make([]trace.Trace, MaxBatchSize+1)
	for i := range batch {
		batch[i] = trace.Trace{AgentID: ag.ID, TaskDescription: "x", Status: trace.StatusSuccess, Category: "coding"}
	}

	_, err := svc.SubmitBatch(context.Background(), ag.APIKeyHash, batch)
	require.Error(t, err)
}

func TestSubmitBatchIsNotAtomic(t *testing.T) {
	svc, _, ag := testService(t)

	batch := []trace.Trace{
		{AgentID: ag.ID, TaskDescription: "ok one", Status: trace.StatusSuccess, DurationMs: 1000, Category: "coding"},
		{AgentID: "wrong-agent", TaskDescription: "bad one", Status: trace.StatusSuccess, DurationMs: 1000, Category: "coding"},
	}

	result, err := svc.SubmitBatch(context.Background(), ag.APIKeyHash, batch)
	require.NoError(t, err)
	require.Equal(t, 1, result.Submitted)
	require.Equal(t, 1, result.Failed)
}
