package webhookdispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/domain/webhook"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

func TestPublishDeliversSignedPayloadToSubscriber(t *testing.T) {
	store := memory.New()
	var received int32
	var gotSignature, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		gotSignature = r.Header.Get("X-Garl-Signature")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook, err := store.CreateWebhook(context.Background(), webhook.Webhook{
		AgentID:  "agent-1",
		URL:      srv.URL,
		Secret:   "shh",
		Events:   []webhook.EventType{webhook.EventTraceRecorded},
		IsActive: true,
	})
	require.NoError(t, err)

	d := New(store, logger.NewDefault("test"))
	require.NoError(t, d.Start(context.Background(), 2))
	defer d.Stop(context.Background())

	d.Publish(context.Background(), reputation.EventTraceRecorded, "agent-1", map[string]interface{}{"trust_score": 72.5})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte(gotBody))
	want := hex.EncodeToString(mac.Sum(nil))
	require.Equal(t, want, gotSignature)

	updated, err := store.GetWebhook(context.Background(), hook.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastTriggeredAt)
}

func TestPublishSkipsUnsubscribedEvent(t *testing.T) {
	store := memory.New()
	var received int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := store.CreateWebhook(context.Background(), webhook.Webhook{
		AgentID:  "agent-1",
		URL:      srv.URL,
		Secret:   "shh",
		Events:   []webhook.EventType{webhook.EventAnomaly},
		IsActive: true,
	})
	require.NoError(t, err)

	d := New(store, logger.NewDefault("test"))
	require.NoError(t, d.Start(context.Background(), 2))
	defer d.Stop(context.Background())

	d.Publish(context.Background(), reputation.EventTraceRecorded, "agent-1", nil)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&received))
}

func TestDeliverRetriesThenGivesUp(t *testing.T) {
	store := memory.New()
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook, err := store.CreateWebhook(context.Background(), webhook.Webhook{
		AgentID:  "agent-1",
		URL:      srv.URL,
		Secret:   "shh",
		Events:   []webhook.EventType{webhook.EventTraceRecorded},
		IsActive: true,
	})
	require.NoError(t, err)

	orig := backoff
	backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { backoff = orig }()

	d := New(store, logger.NewDefault("test"))
	require.NoError(t, d.Start(context.Background(), 1))
	defer d.Stop(context.Background())

	d.Publish(context.Background(), reputation.EventTraceRecorded, "agent-1", nil)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == MaxAttempts
	}, 2*time.Second, 10*time.Millisecond)

	updated, err := store.GetWebhook(context.Background(), hook.ID)
	require.NoError(t, err)
	require.Nil(t, updated.LastTriggeredAt)
}
