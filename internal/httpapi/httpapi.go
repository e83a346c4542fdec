// Package httpapi is the thin HTTP adapter exposing every intake, trust,
// discovery, endorsement, and webhook route over the engine services, plus
// the operational health/metrics surface. It owns no domain logic: every
// handler decodes a request, calls one service method, and translates the
// result (or *apierr.Error) to JSON through the shared writeJSON/writeError
// envelope.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garl-network/trust-ledger/internal/compliance"
	"github.com/garl-network/trust-ledger/internal/core"
	"github.com/garl-network/trust-ledger/internal/endorsement"
	"github.com/garl-network/trust-ledger/internal/metrics"
	"github.com/garl-network/trust-ledger/internal/pipeline"
	"github.com/garl-network/trust-ledger/internal/ratelimit"
	"github.com/garl-network/trust-ledger/internal/signing"
	"github.com/garl-network/trust-ledger/internal/storage"
	"github.com/garl-network/trust-ledger/internal/verdict"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

// Descriptor advertises this component's placement.
var Descriptor = core.Descriptor{
	Name:         "httpapi",
	Layer:        core.LayerSecurity,
	Capabilities: []string{"http"},
}

// Handler bundles every collaborator a route needs. Construct with New and
// mount with Router.
type Handler struct {
	agents     storage.AgentStore
	history    storage.ReputationHistoryStore
	edges      storage.EndorsementStore
	webhooks   storage.WebhookStore
	pipeline   *pipeline.Service
	endorse    *endorsement.Service
	verdicts   *verdict.Service
	compliance *compliance.Service
	keys       signing.KeyPair
	limiter    *ratelimit.Limiter
	readAuth   bool
	log        *logger.Logger
	startedAt  time.Time
}

// New constructs the HTTP handler bundle.
func New(
	agents storage.AgentStore,
	history storage.ReputationHistoryStore,
	edges storage.EndorsementStore,
	webhooks storage.WebhookStore,
	pl *pipeline.Service,
	en *endorsement.Service,
	vd *verdict.Service,
	cp *compliance.Service,
	keys signing.KeyPair,
	limiter *ratelimit.Limiter,
	readAuthEnabled bool,
	log *logger.Logger,
) *Handler {
	return &Handler{
		agents: agents, history: history, edges: edges, webhooks: webhooks,
		pipeline: pl, endorse: en, verdicts: vd, compliance: cp,
		keys: keys, limiter: limiter, readAuth: readAuthEnabled,
		log: log, startedAt: time.Now().UTC(),
	}
}

// Router builds the full gorilla/mux router: every public route, the
// well-known discovery document, and the operational /healthz,
// /system/version, /metrics endpoints. allowedOrigins configures CORS via
// the ALLOWED_ORIGINS environment variable.
func (h *Handler) Router(allowedOrigins []string) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.Use(corsMiddleware(allowedOrigins))

	// Operational surface: never behind API-key auth.
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/system/version", h.handleSystemVersion).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/agent-card.json", h.handleAgentCardDiscovery).Methods(http.MethodGet)

	// Intake surface: writes, all behind X-Api-Key.
	r.Handle("/verify", h.withAPIKeyAuth(h.handleSubmitTrace)).Methods(http.MethodPost)
	r.Handle("/verify/batch", h.withAPIKeyAuth(h.handleSubmitBatch)).Methods(http.MethodPost)
	r.HandleFunc("/verify/check", h.handleVerifyCertificate).Methods(http.MethodPost)

	// Agent lifecycle.
	r.Handle("/agents", h.withRegistrationRateLimit(h.handleRegisterAgent)).Methods(http.MethodPost)
	r.Handle("/agents/auto-register", h.withRegistrationRateLimit(h.handleAutoRegisterAgent)).Methods(http.MethodPost)
	r.Handle("/agents/{id}", h.withAPIKeyAuth(h.handleDeleteAgent)).Methods(http.MethodDelete)
	r.Handle("/agents/{id}/anonymize", h.withAPIKeyAuth(h.handleAnonymizeAgent)).Methods(http.MethodPost)

	// Agent reads.
	r.Handle("/agents/{id}", h.withReadAuth(h.handleGetAgent)).Methods(http.MethodGet)
	r.Handle("/agents/{id}/detail", h.withReadAuth(h.handleGetAgentDetail)).Methods(http.MethodGet)
	r.Handle("/agents/{id}/history", h.withReadAuth(h.handleGetAgentHistory)).Methods(http.MethodGet)
	r.Handle("/agents/{id}/card", h.withReadAuth(h.handleGetAgentCard)).Methods(http.MethodGet)
	r.Handle("/agents/{id}/compliance", h.withReadAuth(h.handleGetAgentCompliance)).Methods(http.MethodGet)

	// Trust verdict and routing.
	r.Handle("/trust/verify", h.withReadAuth(h.handleTrustVerify)).Methods(http.MethodGet)
	r.Handle("/trust/route", h.withReadAuth(h.handleTrustRoute)).Methods(http.MethodGet)

	// Discovery and aggregate views.
	r.Handle("/leaderboard", h.withReadAuth(h.handleLeaderboard)).Methods(http.MethodGet)
	r.Handle("/search", h.withReadAuth(h.handleSearch)).Methods(http.MethodGet)
	r.Handle("/compare", h.withReadAuth(h.handleCompare)).Methods(http.MethodGet)
	r.Handle("/feed", h.withReadAuth(h.handleFeed)).Methods(http.MethodGet)
	r.Handle("/stats", h.withReadAuth(h.handleStats)).Methods(http.MethodGet)
	r.Handle("/badge/{id}", h.withReadAuth(h.handleBadge)).Methods(http.MethodGet)
	r.Handle("/badge/svg/{id}", h.withReadAuth(h.handleBadgeSVG)).Methods(http.MethodGet)

	// Endorsement graph.
	r.Handle("/endorse", h.withAPIKeyAuth(h.handleEndorse)).Methods(http.MethodPost)
	r.Handle("/endorsements/{id}", h.withReadAuth(h.handleListEndorsements)).Methods(http.MethodGet)

	// Webhooks.
	r.Handle("/webhooks", h.withAPIKeyAuth(h.handleCreateWebhook)).Methods(http.MethodPost)
	r.Handle("/webhooks/{id}", h.withReadAuth(h.handleListWebhooks)).Methods(http.MethodGet)
	r.Handle("/webhooks/{id}/{wh}", h.withAPIKeyAuth(h.handlePatchWebhook)).Methods(http.MethodPatch)
	r.Handle("/webhooks/{id}/{wh}", h.withAPIKeyAuth(h.handleDeleteWebhook)).Methods(http.MethodDelete)

	return r
}
