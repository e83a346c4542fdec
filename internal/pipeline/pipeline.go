// Package pipeline orchestrates trace submission: authentication, schema
// validation, duplicate detection, PII masking, the reputation update
// transaction, certificate issuance, and event fan-out. A struct holding
// its storage and collaborator dependencies, one exported method per
// public operation, the core ObservationHooks wired through every call.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/core"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
	"github.com/garl-network/trust-ledger/internal/signing"
	"github.com/garl-network/trust-ledger/internal/storage"
	repengine "github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

const MaxBatchSize = 50

// EventPublisher enqueues an event for webhook fan-out; enqueue failures
// must never fail a submission.
type EventPublisher interface {
	Publish(ctx context.Context, evt reputation.EventType, agentID string, detail map[string]interface{})
}

// Service runs the trace submission pipeline.
type Service struct {
	agents  storage.AgentStore
	traces  storage.TraceStore
	history storage.ReputationHistoryStore
	locks   storage.Locker
	keys    signing.KeyPair
	repCfg  repengine.Config
	events  EventPublisher
	log     *logger.Logger
	hooks   core.ObservationHooks
}

// Descriptor advertises this component's placement.
var Descriptor = core.Descriptor{
	Name:         "pipeline",
	Layer:        core.LayerIntake,
	Capabilities: []string{"submit_trace", "submit_batch"},
}

// New constructs a pipeline Service.
func New(agents storage.AgentStore, traces storage.TraceStore, history storage.ReputationHistoryStore, locks storage.Locker, keys signing.KeyPair, repCfg repengine.Config, events EventPublisher, log *logger.Logger) *Service {
	return &Service{
		agents: agents, traces: traces, history: history, locks: locks,
		keys: keys, repCfg: repCfg, events: events,
		log:   log,
		hooks: core.NoopObservationHooks,
	}
}

// SubmitResult is returned from Submit.
type SubmitResult struct {
	TraceID     string
	TrustDelta  float64
	Certificate signing.Certificate
	NewScores   agent.Dimensions
}

// Submit runs one trace through the full pipeline.
func (s *Service) Submit(ctx context.Context, apiKeyHash string, t trace.Trace) (result SubmitResult, err error) {
	done := core.StartObservation(ctx, s.hooks, map[string]string{"operation": "submit_trace"})
	defer func() { done(err) }()

	authedAgent, err := s.agents.GetAgentByAPIKeyHash(ctx, apiKeyHash)
	if err != nil {
		return SubmitResult{}, apierr.Unauthorized("invalid API key")
	}
	if authedAgent.IsDeleted {
		return SubmitResult{}, apierr.Unauthorized("agent has been deleted")
	}
	if t.AgentID == "" {
		t.AgentID = authedAgent.ID
	}
	if t.AgentID != authedAgent.ID {
		return SubmitResult{}, apierr.Forbidden("agent_id does not match the authenticated API key")
	}

	if err := validateTrace(t); err != nil {
		return SubmitResult{}, err
	}

	hash, err := traceHash(t)
	if err != nil {
		return SubmitResult{}, apierr.Wrap(apierr.CodeStorage, "compute trace hash", err)
	}
	t.TraceHash = hash

	s.locks.Lock(authedAgent.ID)
	defer s.locks.Unlock(authedAgent.ID)

	exists, err := s.traces.TraceExists(ctx, authedAgent.ID, hash)
	if err != nil {
		return SubmitResult{}, apierr.Storage("check duplicate trace", err)
	}
	if exists {
		return s.replayDuplicate(ctx, authedAgent.ID, hash)
	}

	if t.PIIMasked {
		t.InputSummary = sha256Hex(t.InputSummary)
		t.OutputSummary = sha256Hex(t.OutputSummary)
	}

	// re-fetch under lock: the authedAgent snapshot above may be stale if a
	// concurrent submission for the same agent landed between the API-key
	// lookup and acquiring the per-agent lock.
	current, err := s.agents.GetAgent(ctx, authedAgent.ID)
	if err != nil {
		return SubmitResult{}, apierr.Storage("reload agent", err)
	}

	now := time.Now().UTC()
	scoreBefore := current.TrustScore
	updated, repEvents := repengine.ApplyTrace(s.repCfg, current, t, now)
	t.TrustDelta = updated.TrustScore - scoreBefore
	t.TraceID = uuid.NewString()

	cert, err := signing.Sign(s.keys, signing.Payload{
		TraceID:         t.TraceID,
		AgentID:         t.AgentID,
		Status:          string(t.Status),
		TrustScoreAfter: updated.TrustScore,
		TraceHash:       t.TraceHash,
		Created:         now,
	})
	if err != nil {
		return SubmitResult{}, apierr.Wrap(apierr.CodeConfig, "sign certificate", err)
	}
	t.Certificate = cert

	// From here on the writes run on a context that cancellation of the
	// caller's context (for example a client disconnect) does not abort.
	ctx = context.WithoutCancel(ctx)

	inserted, err := s.traces.InsertTrace(ctx, t)
	if err != nil {
		return SubmitResult{}, apierr.Storage("insert trace", err)
	}

	if _, err := s.agents.UpdateAgent(ctx, updated); err != nil {
		return SubmitResult{}, apierr.Storage("update agent reputation", err)
	}

	historyEntry := reputation.HistoryEntry{
		AgentID:        updated.ID,
		TrustScore:     updated.TrustScore,
		Reliability:    updated.Dimensions.Reliability,
		Security:       updated.Dimensions.Security,
		Speed:          updated.Dimensions.Speed,
		CostEfficiency: updated.Dimensions.CostEfficiency,
		Consistency:    updated.Dimensions.Consistency,
		EventType:      reputation.EventTraceRecorded,
		TrustDelta:     t.TrustDelta,
	}
	if _, err := s.history.InsertHistory(ctx, historyEntry); err != nil {
		return SubmitResult{}, apierr.Storage("insert reputation history", err)
	}

	s.publishEvents(ctx, updated, repEvents)

	return SubmitResult{
		TraceID:     inserted.TraceID,
		TrustDelta:  t.TrustDelta,
		Certificate: cert,
		NewScores:   updated.Dimensions,
	}, nil
}

// replayDuplicate handles a resubmission of content already recorded for
// this agent: it returns the original certificate and trace_id rather than
// failing, with no new history row and no second event fan-out.
func (s *Service) replayDuplicate(ctx context.Context, agentID, hash string) (SubmitResult, error) {
	stored, err := s.traces.GetTraceByHash(ctx, agentID, hash)
	if err != nil {
		return SubmitResult{}, apierr.Storage("load duplicate trace", err)
	}
	current, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return SubmitResult{}, apierr.Storage("reload agent", err)
	}
	return SubmitResult{
		TraceID:     stored.TraceID,
		TrustDelta:  stored.TrustDelta,
		Certificate: stored.Certificate,
		NewScores:   current.Dimensions,
	}, nil
}

func (s *Service) publishEvents(ctx context.Context, ag agent.Agent, repEvents []repengine.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, reputation.EventTraceRecorded, ag.ID, map[string]interface{}{"trust_score": ag.TrustScore})
	for _, e := range repEvents {
		evtType := reputation.EventType(e.Kind)
		s.events.Publish(ctx, evtType, ag.ID, map[string]interface{}{"message": e.Message})
	}
}

// BatchResult is returned from SubmitBatch.
type BatchResult struct {
	Submitted int
	Failed    int
	Details   []BatchItemResult
}

// BatchItemResult reports one item's outcome within a batch submission.
type BatchItemResult struct {
	Index   int
	TraceID string
	Error   string
}

// SubmitBatch runs up to MaxBatchSize traces through Submit independently;
// it is not atomic across items.
func (s *Service) SubmitBatch(ctx context.Context, apiKeyHash string, traces []trace.Trace) (BatchResult, error) {
	if len(traces) == 0 {
		return BatchResult{}, apierr.Validation("traces", "batch must contain at least one trace")
	}
	if len(traces) > MaxBatchSize {
		return BatchResult{}, apierr.Validation("traces", fmt.Sprintf("batch exceeds max size of %d", MaxBatchSize))
	}

	var result BatchResult
	for i, t := range traces {
		res, err := s.Submit(ctx, apiKeyHash, t)
		if err != nil {
			result.Failed++
			result.Details = append(result.Details, BatchItemResult{Index: i, Error: err.Error()})
			continue
		}
		result.Submitted++
		result.Details = append(result.Details, BatchItemResult{Index: i, TraceID: res.TraceID})
	}
	return result, nil
}

func validateTrace(t trace.Trace) error {
	if t.TaskDescription == "" {
		return apierr.Validation("task_description", "is required")
	}
	if len(t.TaskDescription) > trace.MaxTaskDescriptionLen {
		return apierr.Validation("task_description", "exceeds maximum length")
	}
	if len(t.InputSummary) > trace.MaxSummaryLen || len(t.OutputSummary) > trace.MaxSummaryLen {
		return apierr.Validation("input_summary/output_summary", "exceeds maximum length")
	}
	if !trace.ValidStatuses[t.Status] {
		return apierr.Validation("status", "must be one of success, failure, partial")
	}
	if t.DurationMs < 0 {
		return apierr.Validation("duration_ms", "must not be negative")
	}
	if !agent.ValidCategories[agent.Category(t.Category)] {
		return apierr.Validation("category", "must be a known category")
	}
	if encoded, err := signing.Canonicalize(t.Metadata); err == nil && len(encoded) > trace.MaxMetadataBytes {
		return apierr.Validation("metadata", "exceeds maximum encoded size")
	}
	return nil
}

func traceHash(t trace.Trace) (string, error) {
	return signing.Hash(t.Canonical())
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
