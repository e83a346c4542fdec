// Package memory is a thread-safe in-memory persistence layer implementing
// the storage interfaces: one sync.RWMutex-guarded map per aggregate.
// Agents are copied defensively in and out, so callers can never mutate a
// stored agent through an aliased slice or map; traces and webhooks are
// stored and returned as given, so their slices and maps are shared with
// the caller.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/endorsement"
	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
	"github.com/garl-network/trust-ledger/internal/domain/webhook"
	"github.com/garl-network/trust-ledger/internal/storage"
)

// Store is the in-memory implementation of storage.Store, intended for
// tests, local development, and the "memory" STORAGE_DRIVER mode.
type Store struct {
	mu sync.RWMutex

	agents        map[string]agent.Agent
	agentsByKey   map[string]string // api key hash -> agent id
	traces        map[string]trace.Trace
	traceHashSeen map[string]string // "agentID|hash" -> trace id
	history       map[string][]reputation.HistoryEntry
	endorsements  map[string][]endorsement.Endorsement // targetID -> edges
	endorsedPairs map[string]bool                      // "endorserID|targetID"
	webhooks      map[string]webhook.Webhook
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		agents:        make(map[string]agent.Agent),
		agentsByKey:   make(map[string]string),
		traces:        make(map[string]trace.Trace),
		traceHashSeen: make(map[string]string),
		history:       make(map[string][]reputation.HistoryEntry),
		endorsements:  make(map[string][]endorsement.Endorsement),
		endorsedPairs: make(map[string]bool),
		webhooks:      make(map[string]webhook.Webhook),
	}
}

var _ storage.Store = (*Store)(nil)

// -- AgentStore ---------------------------------------------------------

func (s *Store) CreateAgent(_ context.Context, a agent.Agent) (agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := s.agents[a.ID]; exists {
		return agent.Agent{}, storage.ErrConflict
	}
	if a.APIKeyHash != "" {
		if _, exists := s.agentsByKey[a.APIKeyHash]; exists {
			return agent.Agent{}, storage.ErrConflict
		}
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.agents[a.ID] = cloneAgent(a)
	if a.APIKeyHash != "" {
		s.agentsByKey[a.APIKeyHash] = a.ID
	}
	return cloneAgent(a), nil
}

func (s *Store) UpdateAgent(_ context.Context, a agent.Agent) (agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.agents[a.ID]
	if !ok {
		return agent.Agent{}, storage.ErrNotFound
	}
	if existing.APIKeyHash != a.APIKeyHash {
		delete(s.agentsByKey, existing.APIKeyHash)
		if a.APIKeyHash != "" {
			s.agentsByKey[a.APIKeyHash] = a.ID
		}
	}

	a.UpdatedAt = time.Now().UTC()
	s.agents[a.ID] = cloneAgent(a)
	return cloneAgent(a), nil
}

func (s *Store) GetAgent(_ context.Context, id string) (agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return agent.Agent{}, storage.ErrNotFound
	}
	return cloneAgent(a), nil
}

func (s *Store) GetAgentByAPIKeyHash(_ context.Context, hash string) (agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.agentsByKey[hash]
	if !ok {
		return agent.Agent{}, storage.ErrNotFound
	}
	return cloneAgent(s.agents[id]), nil
}

func (s *Store) ListAgents(_ context.Context, category agent.Category, includeDeleted bool) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if category != "" && a.Category != category {
			continue
		}
		if a.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) RouteCandidates(_ context.Context, category agent.Category, minTier agent.Tier, limit int) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []agent.Agent
	for _, a := range s.agents {
		if a.IsDeleted || a.IsSandbox {
			continue
		}
		if a.Category != category {
			continue
		}
		if !a.Tier.AtLeast(minTier) {
			continue
		}
		if a.HasCriticalAnomaly() {
			continue
		}
		candidates = append(candidates, cloneAgent(a))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].TrustScore != candidates[j].TrustScore {
			return candidates[i].TrustScore > candidates[j].TrustScore
		}
		return candidates[i].TotalTraces > candidates[j].TotalTraces
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.IsDeleted = true
	a.UpdatedAt = time.Now().UTC()
	s.agents[id] = a
	return nil
}

// -- TraceStore -----------------------------------------------------------

func (s *Store) InsertTrace(_ context.Context, t trace.Trace) (trace.Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.AgentID + "|" + t.TraceHash
	if _, seen := s.traceHashSeen[key]; seen {
		return trace.Trace{}, storage.ErrConflict
	}
	if t.TraceID == "" {
		t.TraceID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	s.traces[t.TraceID] = t
	s.traceHashSeen[key] = t.TraceID
	return t, nil
}

func (s *Store) GetTrace(_ context.Context, id string) (trace.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.traces[id]
	if !ok {
		return trace.Trace{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) TraceExists(_ context.Context, agentID, traceHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, seen := s.traceHashSeen[agentID+"|"+traceHash]
	return seen, nil
}

func (s *Store) GetTraceByHash(_ context.Context, agentID, traceHash string) (trace.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.traceHashSeen[agentID+"|"+traceHash]
	if !ok {
		return trace.Trace{}, storage.ErrNotFound
	}
	t, ok := s.traces[id]
	if !ok {
		return trace.Trace{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTraces(_ context.Context, agentID string, limit int) ([]trace.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []trace.Trace
	for _, t := range s.traces {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -- ReputationHistoryStore -------------------------------------------------

func (s *Store) InsertHistory(_ context.Context, entry reputation.HistoryEntry) (reputation.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	s.history[entry.AgentID] = append(s.history[entry.AgentID], entry)
	return entry, nil
}

func (s *Store) ListHistory(_ context.Context, agentID string, limit int) ([]reputation.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[agentID]
	out := make([]reputation.HistoryEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRecentHistory scans every agent's history slice; acceptable for the
// in-memory/test backend, same tradeoff as ListEndorsementsGiven.
func (s *Store) ListRecentHistory(_ context.Context, limit int) ([]reputation.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reputation.HistoryEntry
	for _, entries := range s.history {
		out = append(out, entries...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -- EndorsementStore ---------------------------------------------------

func (s *Store) InsertEndorsement(_ context.Context, e endorsement.Endorsement) (endorsement.Endorsement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairKey := e.EndorserID + "|" + e.TargetID
	if s.endorsedPairs[pairKey] {
		return endorsement.Endorsement{}, storage.ErrConflict
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	s.endorsedPairs[pairKey] = true
	s.endorsements[e.TargetID] = append(s.endorsements[e.TargetID], e)
	return e, nil
}

func (s *Store) EndorsementExists(_ context.Context, endorserID, targetID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endorsedPairs[endorserID+"|"+targetID], nil
}

func (s *Store) ListEndorsementsFor(_ context.Context, targetID string) ([]endorsement.Endorsement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.endorsements[targetID]
	out := make([]endorsement.Endorsement, len(edges))
	copy(out, edges)
	return out, nil
}

// ListEndorsementsGiven scans every target's edge list for ones authored by
// endorserID; the store indexes by target only, so this is O(edges) rather
// than O(1) -- acceptable for the in-memory/test backend.
func (s *Store) ListEndorsementsGiven(_ context.Context, endorserID string) ([]endorsement.Endorsement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []endorsement.Endorsement
	for _, edges := range s.endorsements {
		for _, e := range edges {
			if e.EndorserID == endorserID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// -- WebhookStore ---------------------------------------------------------

func (s *Store) CreateWebhook(_ context.Context, w webhook.Webhook) (webhook.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.CreatedAt = time.Now().UTC()
	s.webhooks[w.ID] = w
	return w, nil
}

func (s *Store) UpdateWebhook(_ context.Context, w webhook.Webhook) (webhook.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[w.ID]; !ok {
		return webhook.Webhook{}, storage.ErrNotFound
	}
	s.webhooks[w.ID] = w
	return w, nil
}

func (s *Store) GetWebhook(_ context.Context, id string) (webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return webhook.Webhook{}, storage.ErrNotFound
	}
	return w, nil
}

func (s *Store) ListActiveWebhooksFor(_ context.Context, eventType webhook.EventType) ([]webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []webhook.Webhook
	for _, w := range s.webhooks {
		if w.Subscribes(eventType) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) ListWebhooks(_ context.Context, ownerAgentID string) ([]webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []webhook.Webhook
	for _, w := range s.webhooks {
		if w.AgentID == ownerAgentID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) DeleteWebhook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.webhooks, id)
	return nil
}

func (s *Store) MarkTriggered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return storage.ErrNotFound
	}
	w.LastTriggeredAt = &at
	s.webhooks[id] = w
	return nil
}

func cloneAgent(a agent.Agent) agent.Agent {
	out := a
	out.Permissions = append([]string(nil), a.Permissions...)
	out.RecentReliabilityObs = append([]float64(nil), a.RecentReliabilityObs...)
	out.RecentOutcomes = append([]bool(nil), a.RecentOutcomes...)
	out.AnomalyFlags = append([]agent.AnomalyFlag(nil), a.AnomalyFlags...)
	if a.Metadata != nil {
		out.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	if a.LastTraceAt != nil {
		t := *a.LastTraceAt
		out.LastTraceAt = &t
	}
	return out
}
