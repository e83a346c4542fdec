// Package storage defines the persistence interfaces the engine, pipeline,
// and HTTP layers depend on: one interface per aggregate, context-first
// CRUD methods, concrete implementations (memory, postgres) satisfy all
// of them.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/endorsement"
	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
	"github.com/garl-network/trust-ledger/internal/domain/webhook"
)

// ErrNotFound is returned by Get-style methods when no record matches.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when a uniqueness constraint is violated (e.g. a
// duplicate trace hash, a duplicate endorsement edge, or an API key clash).
var ErrConflict = errors.New("storage: conflict")

// AgentStore persists registered agents.
type AgentStore interface {
	CreateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error)
	UpdateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error)
	GetAgent(ctx context.Context, id string) (agent.Agent, error)
	GetAgentByAPIKeyHash(ctx context.Context, hash string) (agent.Agent, error)
	ListAgents(ctx context.Context, category agent.Category, includeDeleted bool) ([]agent.Agent, error)
	RouteCandidates(ctx context.Context, category agent.Category, minTier agent.Tier, limit int) ([]agent.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
}

// TraceStore persists submitted execution traces.
type TraceStore interface {
	InsertTrace(ctx context.Context, t trace.Trace) (trace.Trace, error)
	GetTrace(ctx context.Context, id string) (trace.Trace, error)
	TraceExists(ctx context.Context, agentID, traceHash string) (bool, error)
	// GetTraceByHash loads the trace previously inserted under this
	// (agentID, traceHash) pair, so a resubmission of identical content can
	// replay its original certificate instead of failing.
	GetTraceByHash(ctx context.Context, agentID, traceHash string) (trace.Trace, error)
	ListTraces(ctx context.Context, agentID string, limit int) ([]trace.Trace, error)
}

// ReputationHistoryStore persists the append-only reputation event log.
type ReputationHistoryStore interface {
	InsertHistory(ctx context.Context, entry reputation.HistoryEntry) (reputation.HistoryEntry, error)
	ListHistory(ctx context.Context, agentID string, limit int) ([]reputation.HistoryEntry, error)
	// ListRecentHistory returns the most recent entries across every agent,
	// newest first, for the global activity feed route.
	ListRecentHistory(ctx context.Context, limit int) ([]reputation.HistoryEntry, error)
}

// EndorsementStore persists the endorsement graph.
type EndorsementStore interface {
	InsertEndorsement(ctx context.Context, e endorsement.Endorsement) (endorsement.Endorsement, error)
	EndorsementExists(ctx context.Context, endorserID, targetID string) (bool, error)
	ListEndorsementsFor(ctx context.Context, targetID string) ([]endorsement.Endorsement, error)
	ListEndorsementsGiven(ctx context.Context, endorserID string) ([]endorsement.Endorsement, error)
}

// WebhookStore persists webhook subscriptions.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w webhook.Webhook) (webhook.Webhook, error)
	UpdateWebhook(ctx context.Context, w webhook.Webhook) (webhook.Webhook, error)
	GetWebhook(ctx context.Context, id string) (webhook.Webhook, error)
	ListActiveWebhooksFor(ctx context.Context, eventType webhook.EventType) ([]webhook.Webhook, error)
	ListWebhooks(ctx context.Context, ownerAgentID string) ([]webhook.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}

// Store is the union every backend implements; components depend on the
// narrowest interface they need, Store exists for wiring in cmd/server.
type Store interface {
	AgentStore
	TraceStore
	ReputationHistoryStore
	EndorsementStore
	WebhookStore
}

// Locker linearises mutating operations per agent: the pipeline and
// endorsement engine acquire the named lock before a read-modify-write
// cycle against that agent's state.
type Locker interface {
	Lock(agentID string)
	Unlock(agentID string)
}
