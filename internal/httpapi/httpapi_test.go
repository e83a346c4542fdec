package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/compliance"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/endorsement"
	"github.com/garl-network/trust-ledger/internal/pipeline"
	"github.com/garl-network/trust-ledger/internal/ratelimit"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/signing"
	"github.com/garl-network/trust-ledger/internal/storage/agentlock"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
	"github.com/garl-network/trust-ledger/internal/verdict"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

// testHandler wires every service against a fresh in-memory store, mirroring
// cmd/server's wiring at a smaller scale.
func testHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	keys, err := signing.Generate()
	require.NoError(t, err)

	locks := agentlock.New(16)
	repCfg := reputation.DefaultConfig()
	log := logger.NewDefault("test")

	pl := pipeline.New(store, store, store, locks, keys, repCfg, nil, log)
	en := endorsement.New(store, store, store, locks, log)
	vd := verdict.New(store, repCfg)
	cp := compliance.New(store, store, repCfg)
	limiter := ratelimit.New(ratelimit.Config{Limit: 1000, Window: 0})

	h := New(store, store, store, store, pl, en, vd, cp, keys, limiter, false, log)
	return h, store
}

func registerTestAgent(t *testing.T, h *Handler) (agent.Agent, string) {
	t.Helper()
	a, apiKey, err := h.registerAgent(httptest.NewRequest(http.MethodPost, "/agents", nil), registerAgentRequest{
		Name:     "Test Agent",
		Category: string(agent.CategoryCoding),
	})
	require.NoError(t, err)
	return a, apiKey
}

func doRequest(h *Handler, method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Router(nil).ServeHTTP(rec, req)
	return rec
}

func TestRegisterAgentThenGet(t *testing.T) {
	h, _ := testHandler(t)

	rec := doRequest(h, http.MethodPost, "/agents", registerAgentRequest{
		Name:     "Alpha",
		Category: string(agent.CategoryResearch),
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created registerAgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.AgentID)
	require.Equal(t, "did:garl:"+created.AgentID, created.SovereignID)
	require.NotEmpty(t, created.APIKey)

	rec = doRequest(h, http.MethodGet, "/agents/"+created.AgentID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got agentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, created.AgentID, got.AgentID)
	require.Equal(t, float64(50), got.TrustScore)
}

func TestDeleteAgentRequiresOwnership(t *testing.T) {
	h, _ := testHandler(t)
	ag, _ := registerTestAgent(t, h)

	rec := doRequest(h, http.MethodDelete, "/agents/"+ag.ID, nil, "wrong-key")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(h, http.MethodDelete, "/agents/"+ag.ID, nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitTraceRequiresAPIKey(t *testing.T) {
	h, _ := testHandler(t)
	ag, _ := registerTestAgent(t, h)

	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"agent_id":         ag.ID,
		"task_description": "write a function",
		"status":           "success",
		"duration_ms":      1000,
		"category":         "coding",
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitTraceAndReadHistory(t *testing.T) {
	h, _ := testHandler(t)
	ag, apiKey := registerTestAgent(t, h)

	rec := doRequest(h, http.MethodPost, "/verify", map[string]interface{}{
		"agent_id":         ag.ID,
		"task_description": "write a function",
		"status":           "success",
		"duration_ms":      1000,
		"category":         "coding",
	}, apiKey)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(h, http.MethodGet, "/agents/"+ag.ID+"/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
}

func TestEndorseRejectsSelfEndorsement(t *testing.T) {
	h, _ := testHandler(t)
	ag, apiKey := registerTestAgent(t, h)

	rec := doRequest(h, http.MethodPost, "/endorse", endorseRequest{
		EndorserID: ag.ID,
		TargetID:   ag.ID,
	}, apiKey)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndorseRequiresEndorserOwnership(t *testing.T) {
	h, _ := testHandler(t)
	endorser, _ := registerTestAgent(t, h)
	target, _ := registerTestAgent(t, h)

	rec := doRequest(h, http.MethodPost, "/endorse", endorseRequest{
		EndorserID: endorser.ID,
		TargetID:   target.ID,
	}, "not-the-endorsers-key")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateListAndDeleteWebhook(t *testing.T) {
	h, _ := testHandler(t)
	ag, apiKey := registerTestAgent(t, h)

	rec := doRequest(h, http.MethodPost, "/webhooks", createWebhookRequest{
		AgentID: ag.ID,
		URL:     "https://example.com/hook",
		Events:  []string{"trace_recorded"},
	}, apiKey)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	whID, _ := created["ID"].(string)
	require.NotEmpty(t, whID)

	rec = doRequest(h, http.MethodGet, "/webhooks/"+ag.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodDelete, "/webhooks/"+ag.ID+"/"+whID, nil, apiKey)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLeaderboardExcludesSandboxAgents(t *testing.T) {
	h, _ := testHandler(t)
	_, _ = registerTestAgent(t, h)

	req := httptest.NewRequest(http.MethodPost, "/agents", nil)
	_, _, err := h.registerAgent(req, registerAgentRequest{
		Name:      "Sandbox Agent",
		Category:  string(agent.CategoryCoding),
		IsSandbox: true,
	})
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, "/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]agentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, a := range body["agents"] {
		require.False(t, a.IsSandbox)
	}
}

func TestAgentCardDiscoveryServesPublicKey(t *testing.T) {
	h, _ := testHandler(t)

	rec := doRequest(h, http.MethodGet, "/.well-known/agent-card.json", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc agentCardDiscovery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, h.keys.PublicKeyHex(), doc.PublicKey)
}
