// Package postgres implements the storage interfaces against PostgreSQL: a
// thin *sql.DB wrapper, JSON-marshalled columns for open-shape fields,
// plain parameterised SQL (no ORM), lib/pq as the driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/endorsement"
	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
	"github.com/garl-network/trust-ledger/internal/domain/webhook"
	"github.com/garl-network/trust-ledger/internal/storage"
)

// Store implements storage.Store backed by a PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New wraps an already-open database handle. Open("postgres", dsn) and run
// Apply(ctx, db) before constructing a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// -- AgentStore ---------------------------------------------------------

func (s *Store) CreateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	permJSON, _ := json.Marshal(a.Permissions)
	metaJSON, _ := json.Marshal(a.Metadata)
	obsJSON, _ := json.Marshal(a.RecentReliabilityObs)
	outcomesJSON, _ := json.Marshal(a.RecentOutcomes)
	flagsJSON, _ := json.Marshal(a.AnomalyFlags)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (
			id, sovereign_id, name, description, framework, category, api_key_hash,
			permissions, metadata, is_sandbox, is_deleted,
			reliability, security, speed, cost_efficiency, consistency, trust_score, tier,
			total_traces, success_count, success_rate, consecutive_successes, avg_duration_ms, total_cost_usd,
			recent_reliability_obs, recent_outcomes, anomaly_flags,
			endorsement_score, endorsement_count, last_trace_at, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11,
			$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,
			$25,$26,$27,
			$28,$29,$30,$31,$32
		)`,
		a.ID, a.SovereignID, a.Name, a.Description, a.Framework, string(a.Category), a.APIKeyHash,
		permJSON, metaJSON, a.IsSandbox, a.IsDeleted,
		a.Dimensions.Reliability, a.Dimensions.Security, a.Dimensions.Speed, a.Dimensions.CostEfficiency, a.Dimensions.Consistency, a.TrustScore, string(a.Tier),
		a.TotalTraces, a.SuccessCount, a.SuccessRate, a.ConsecutiveSuccesses, a.AvgDurationMs, a.TotalCostUSD,
		obsJSON, outcomesJSON, flagsJSON,
		a.EndorsementScore, a.EndorsementCount, a.LastTraceAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}

func (s *Store) UpdateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	a.UpdatedAt = time.Now().UTC()

	permJSON, _ := json.Marshal(a.Permissions)
	metaJSON, _ := json.Marshal(a.Metadata)
	obsJSON, _ := json.Marshal(a.RecentReliabilityObs)
	outcomesJSON, _ := json.Marshal(a.RecentOutcomes)
	flagsJSON, _ := json.Marshal(a.AnomalyFlags)

	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET
			name=$2, description=$3, framework=$4, category=$5, api_key_hash=$6,
			permissions=$7, metadata=$8, is_sandbox=$9, is_deleted=$10,
			reliability=$11, security=$12, speed=$13, cost_efficiency=$14, consistency=$15, trust_score=$16, tier=$17,
			total_traces=$18, success_count=$19, success_rate=$20, consecutive_successes=$21, avg_duration_ms=$22, total_cost_usd=$23,
			recent_reliability_obs=$24, recent_outcomes=$25, anomaly_flags=$26,
			endorsement_score=$27, endorsement_count=$28, last_trace_at=$29, updated_at=$30
		WHERE id=$1`,
		a.ID, a.Name, a.Description, a.Framework, string(a.Category), a.APIKeyHash,
		permJSON, metaJSON, a.IsSandbox, a.IsDeleted,
		a.Dimensions.Reliability, a.Dimensions.Security, a.Dimensions.Speed, a.Dimensions.CostEfficiency, a.Dimensions.Consistency, a.TrustScore, string(a.Tier),
		a.TotalTraces, a.SuccessCount, a.SuccessRate, a.ConsecutiveSuccesses, a.AvgDurationMs, a.TotalCostUSD,
		obsJSON, outcomesJSON, flagsJSON,
		a.EndorsementScore, a.EndorsementCount, a.LastTraceAt, a.UpdatedAt,
	)
	if err != nil {
		return agent.Agent{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return agent.Agent{}, storage.ErrNotFound
	}
	return a, nil
}

const agentColumns = `
	id, sovereign_id, name, description, framework, category, api_key_hash,
	permissions, metadata, is_sandbox, is_deleted,
	reliability, security, speed, cost_efficiency, consistency, trust_score, tier,
	total_traces, success_count, success_rate, consecutive_successes, avg_duration_ms, total_cost_usd,
	recent_reliability_obs, recent_outcomes, anomaly_flags,
	endorsement_score, endorsement_count, last_trace_at, created_at, updated_at`

func scanAgent(row interface{ Scan(...interface{}) error }) (agent.Agent, error) {
	var a agent.Agent
	var category, tier string
	var permJSON, metaJSON, obsJSON, outcomesJSON, flagsJSON []byte

	err := row.Scan(
		&a.ID, &a.SovereignID, &a.Name, &a.Description, &a.Framework, &category, &a.APIKeyHash,
		&permJSON, &metaJSON, &a.IsSandbox, &a.IsDeleted,
		&a.Dimensions.Reliability, &a.Dimensions.Security, &a.Dimensions.Speed, &a.Dimensions.CostEfficiency, &a.Dimensions.Consistency, &a.TrustScore, &tier,
		&a.TotalTraces, &a.SuccessCount, &a.SuccessRate, &a.ConsecutiveSuccesses, &a.AvgDurationMs, &a.TotalCostUSD,
		&obsJSON, &outcomesJSON, &flagsJSON,
		&a.EndorsementScore, &a.EndorsementCount, &a.LastTraceAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return agent.Agent{}, mapErr(err)
	}
	a.Category = agent.Category(category)
	a.Tier = agent.Tier(tier)
	_ = json.Unmarshal(permJSON, &a.Permissions)
	_ = json.Unmarshal(metaJSON, &a.Metadata)
	_ = json.Unmarshal(obsJSON, &a.RecentReliabilityObs)
	_ = json.Unmarshal(outcomesJSON, &a.RecentOutcomes)
	_ = json.Unmarshal(flagsJSON, &a.AnomalyFlags)
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (agent.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=$1`, id)
	return scanAgent(row)
}

func (s *Store) GetAgentByAPIKeyHash(ctx context.Context, hash string) (agent.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_hash=$1`, hash)
	return scanAgent(row)
}

func (s *Store) ListAgents(ctx context.Context, category agent.Category, includeDeleted bool) ([]agent.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE ($1 = '' OR category = $1) AND ($2 OR NOT is_deleted) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, string(category), includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) RouteCandidates(ctx context.Context, category agent.Category, minTier agent.Tier, limit int) ([]agent.Agent, error) {
	query := `
		SELECT ` + agentColumns + ` FROM agents
		WHERE category = $1 AND NOT is_deleted AND NOT is_sandbox
		ORDER BY trust_score DESC, total_traces DESC`
	rows, err := s.db.QueryContext(ctx, query, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		if !a.Tier.AtLeast(minTier) || a.HasCriticalAnomaly() {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE agents SET is_deleted=true, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// -- TraceStore -----------------------------------------------------------

func (s *Store) InsertTrace(ctx context.Context, t trace.Trace) (trace.Trace, error) {
	if t.TraceID == "" {
		t.TraceID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	toolCallsJSON, _ := json.Marshal(t.ToolCalls)
	metaJSON, _ := json.Marshal(t.Metadata)
	permsJSON, _ := json.Marshal(t.DeclaredPermissions)
	certJSON, _ := json.Marshal(t.Certificate)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traces (
			trace_id, agent_id, task_description, status, duration_ms, category, cost_usd,
			token_count, tool_calls, input_summary, output_summary, pii_masked, metadata, runtime_env,
			declared_permissions, security_flagged, trace_hash, certificate, trust_delta, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.TraceID, t.AgentID, t.TaskDescription, string(t.Status), t.DurationMs, t.Category, t.CostUSD,
		t.TokenCount, toolCallsJSON, t.InputSummary, t.OutputSummary, t.PIIMasked, metaJSON, t.RuntimeEnv,
		permsJSON, t.SecurityFlagged, t.TraceHash, certJSON, t.TrustDelta, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return trace.Trace{}, storage.ErrConflict
		}
		return trace.Trace{}, err
	}
	return t, nil
}

func (s *Store) GetTrace(ctx context.Context, id string) (trace.Trace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trace_id, agent_id, task_description, status, duration_ms, category, cost_usd,
			token_count, tool_calls, input_summary, output_summary, pii_masked, metadata, runtime_env,
			declared_permissions, security_flagged, trace_hash, certificate, trust_delta, created_at
		FROM traces WHERE trace_id=$1`, id)
	return scanTrace(row)
}

func scanTrace(row interface{ Scan(...interface{}) error }) (trace.Trace, error) {
	var t trace.Trace
	var status string
	var toolCallsJSON, metaJSON, permsJSON, certJSON []byte

	err := row.Scan(
		&t.TraceID, &t.AgentID, &t.TaskDescription, &status, &t.DurationMs, &t.Category, &t.CostUSD,
		&t.TokenCount, &toolCallsJSON, &t.InputSummary, &t.OutputSummary, &t.PIIMasked, &metaJSON, &t.RuntimeEnv,
		&permsJSON, &t.SecurityFlagged, &t.TraceHash, &certJSON, &t.TrustDelta, &t.CreatedAt,
	)
	if err != nil {
		return trace.Trace{}, mapErr(err)
	}
	t.Status = trace.Status(status)
	_ = json.Unmarshal(toolCallsJSON, &t.ToolCalls)
	_ = json.Unmarshal(metaJSON, &t.Metadata)
	_ = json.Unmarshal(permsJSON, &t.DeclaredPermissions)
	_ = json.Unmarshal(certJSON, &t.Certificate)
	return t, nil
}

func (s *Store) TraceExists(ctx context.Context, agentID, traceHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM traces WHERE agent_id=$1 AND trace_hash=$2)`, agentID, traceHash).Scan(&exists)
	return exists, err
}

func (s *Store) GetTraceByHash(ctx context.Context, agentID, traceHash string) (trace.Trace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trace_id, agent_id, task_description, status, duration_ms, category, cost_usd,
			token_count, tool_calls, input_summary, output_summary, pii_masked, metadata, runtime_env,
			declared_permissions, security_flagged, trace_hash, certificate, trust_delta, created_at
		FROM traces WHERE agent_id=$1 AND trace_hash=$2`, agentID, traceHash)
	return scanTrace(row)
}

func (s *Store) ListTraces(ctx context.Context, agentID string, limit int) ([]trace.Trace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, agent_id, task_description, status, duration_ms, category, cost_usd,
			token_count, tool_calls, input_summary, output_summary, pii_masked, metadata, runtime_env,
			declared_permissions, security_flagged, trace_hash, certificate, trust_delta, created_at
		FROM traces WHERE agent_id=$1 ORDER BY created_at DESC LIMIT $2`, agentID, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trace.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// -- ReputationHistoryStore -------------------------------------------------

func (s *Store) InsertHistory(ctx context.Context, entry reputation.HistoryEntry) (reputation.HistoryEntry, error) {
	entry.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation_history (
			id, agent_id, trust_score, reliability, security, speed, cost_efficiency, consistency,
			event_type, trust_delta, anomaly_ref, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		entry.ID, entry.AgentID, entry.TrustScore, entry.Reliability, entry.Security, entry.Speed, entry.CostEfficiency, entry.Consistency,
		string(entry.EventType), entry.TrustDelta, entry.AnomalyRef, entry.CreatedAt,
	)
	if err != nil {
		return reputation.HistoryEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListHistory(ctx context.Context, agentID string, limit int) ([]reputation.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, trust_score, reliability, security, speed, cost_efficiency, consistency,
			event_type, trust_delta, anomaly_ref, created_at
		FROM reputation_history WHERE agent_id=$1 ORDER BY created_at DESC LIMIT $2`, agentID, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

// ListRecentHistory backs the global activity feed route: the most recent
// entries across every agent, newest first.
func (s *Store) ListRecentHistory(ctx context.Context, limit int) ([]reputation.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, trust_score, reliability, security, speed, cost_efficiency, consistency,
			event_type, trust_delta, anomaly_ref, created_at
		FROM reputation_history ORDER BY created_at DESC LIMIT $1`, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func scanHistoryRows(rows *sql.Rows) ([]reputation.HistoryEntry, error) {
	var out []reputation.HistoryEntry
	for rows.Next() {
		var e reputation.HistoryEntry
		var eventType string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.TrustScore, &e.Reliability, &e.Security, &e.Speed, &e.CostEfficiency, &e.Consistency,
			&eventType, &e.TrustDelta, &e.AnomalyRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = reputation.EventType(eventType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// -- EndorsementStore ---------------------------------------------------

func (s *Store) InsertEndorsement(ctx context.Context, e endorsement.Endorsement) (endorsement.Endorsement, error) {
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO endorsements (
			id, endorser_id, target_id, endorser_score, endorser_traces, endorser_tier,
			bonus_applied, tier_multiplier, context, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.EndorserID, e.TargetID, e.EndorserScore, e.EndorserTraces, e.EndorserTier,
		e.BonusApplied, e.TierMultiplier, e.Context, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return endorsement.Endorsement{}, storage.ErrConflict
		}
		return endorsement.Endorsement{}, err
	}
	return e, nil
}

func (s *Store) EndorsementExists(ctx context.Context, endorserID, targetID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM endorsements WHERE endorser_id=$1 AND target_id=$2)`, endorserID, targetID).Scan(&exists)
	return exists, err
}

func (s *Store) ListEndorsementsFor(ctx context.Context, targetID string) ([]endorsement.Endorsement, error) {
	return s.queryEndorsements(ctx, "target_id", targetID)
}

func (s *Store) ListEndorsementsGiven(ctx context.Context, endorserID string) ([]endorsement.Endorsement, error) {
	return s.queryEndorsements(ctx, "endorser_id", endorserID)
}

func (s *Store) queryEndorsements(ctx context.Context, column, value string) ([]endorsement.Endorsement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endorser_id, target_id, endorser_score, endorser_traces, endorser_tier,
			bonus_applied, tier_multiplier, context, created_at
		FROM endorsements WHERE `+column+`=$1`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []endorsement.Endorsement
	for rows.Next() {
		var e endorsement.Endorsement
		if err := rows.Scan(&e.ID, &e.EndorserID, &e.TargetID, &e.EndorserScore, &e.EndorserTraces, &e.EndorserTier,
			&e.BonusApplied, &e.TierMultiplier, &e.Context, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// -- WebhookStore ---------------------------------------------------------

func (s *Store) CreateWebhook(ctx context.Context, w webhook.Webhook) (webhook.Webhook, error) {
	w.CreatedAt = time.Now().UTC()
	eventsJSON, _ := json.Marshal(w.Events)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, agent_id, url, secret, events, is_active, created_at, last_triggered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		w.ID, w.AgentID, w.URL, w.Secret, eventsJSON, w.IsActive, w.CreatedAt, w.LastTriggeredAt,
	)
	if err != nil {
		return webhook.Webhook{}, err
	}
	return w, nil
}

func (s *Store) UpdateWebhook(ctx context.Context, w webhook.Webhook) (webhook.Webhook, error) {
	eventsJSON, _ := json.Marshal(w.Events)
	result, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET url=$2, secret=$3, events=$4, is_active=$5 WHERE id=$1`,
		w.ID, w.URL, w.Secret, eventsJSON, w.IsActive,
	)
	if err != nil {
		return webhook.Webhook{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return webhook.Webhook{}, storage.ErrNotFound
	}
	return w, nil
}

func (s *Store) GetWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, url, secret, events, is_active, created_at, last_triggered_at
		FROM webhooks WHERE id=$1`, id)
	return scanWebhook(row)
}

func scanWebhook(row interface{ Scan(...interface{}) error }) (webhook.Webhook, error) {
	var w webhook.Webhook
	var eventsJSON []byte
	err := row.Scan(&w.ID, &w.AgentID, &w.URL, &w.Secret, &eventsJSON, &w.IsActive, &w.CreatedAt, &w.LastTriggeredAt)
	if err != nil {
		return webhook.Webhook{}, mapErr(err)
	}
	_ = json.Unmarshal(eventsJSON, &w.Events)
	return w, nil
}

func (s *Store) ListActiveWebhooksFor(ctx context.Context, eventType webhook.EventType) ([]webhook.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, url, secret, events, is_active, created_at, last_triggered_at
		FROM webhooks WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []webhook.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if w.Subscribes(eventType) {
			out = append(out, w)
		}
	}
	return out, rows.Err()
}

func (s *Store) ListWebhooks(ctx context.Context, ownerAgentID string) ([]webhook.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, url, secret, events, is_active, created_at, last_triggered_at
		FROM webhooks WHERE agent_id=$1`, ownerAgentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []webhook.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE webhooks SET last_triggered_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullableLimit(limit int) int {
	if limit <= 0 {
		return 1000000
	}
	return limit
}

func isUniqueViolation(err error) bool {
	// lib/pq reports unique_violation as SQLSTATE 23505; string-matching
	// avoids importing the driver's internal pq.Error type directly here.
	return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key"))
}
