// Package trace models the append-only execution record an agent submits
// to the ledger.
package trace

import (
	"time"

	"github.com/garl-network/trust-ledger/internal/signing"
)

// Status is the closed outcome set for a trace.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial"
)

// ValidStatuses lists every closed Status value, for validation.
var ValidStatuses = map[Status]bool{
	StatusSuccess: true,
	StatusFailure: true,
	StatusPartial: true,
}

// ToolCall is one tool invocation recorded within a trace.
type ToolCall struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// Certificate is the signed envelope returned on submission; the wire shape
// is defined once in internal/signing and reused here since signing has no
// dependency back on this package.
type Certificate = signing.Certificate

// Trace is the append-only execution record. Fields marked server-assigned
// are never part of the canonical hash input.
type Trace struct {
	TraceID         string // server-assigned
	AgentID         string
	TaskDescription string // <= 1000 chars
	Status          Status
	DurationMs      int64
	Category        string
	CostUSD         *float64
	TokenCount       int64
	ToolCalls        []ToolCall
	InputSummary     string // <= 500 chars, or sha256 hex if PII-masked
	OutputSummary    string
	PIIMasked        bool
	Metadata         map[string]interface{} // open-shape, <= 4KiB encoded
	RuntimeEnv       string

	DeclaredPermissions []string // permissions this trace claims to operate within, checked against agent.Permissions
	SecurityFlagged     bool     // set when an upstream guard (sandbox, policy check) flagged this trace

	TraceHash   string // server-assigned: sha256 of canonical payload
	Certificate Certificate
	TrustDelta  float64 // server-assigned: trust_score_after - trust_score_before

	CreatedAt time.Time // server-assigned
}

// CanonicalFields is the exact field set hashed/signed for a trace,
// excluding every server-assigned field (trace_id, trace_hash, certificate,
// trust_delta, created_at). Duplicate detection is keyed on (agent_id,
// trace_hash), so trace_id must stay out of the hash input -- otherwise a
// retried submission, which gets a freshly assigned trace_id, would never
// hash the same way twice.
type CanonicalFields struct {
	AgentID         string                 `json:"agent_id"`
	TaskDescription string                 `json:"task_description"`
	Status          Status                 `json:"status"`
	DurationMs      int64                  `json:"duration_ms"`
	Category        string                 `json:"category"`
	CostUSD         *float64               `json:"cost_usd,omitempty"`
	TokenCount      int64                  `json:"token_count"`
	ToolCalls       []ToolCall             `json:"tool_calls,omitempty"`
	InputSummary    string                 `json:"input_summary"`
	OutputSummary   string                 `json:"output_summary"`
	RuntimeEnv      string                 `json:"runtime_env"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	DeclaredPermissions []string           `json:"declared_permissions,omitempty"`
	SecurityFlagged     bool               `json:"security_flagged,omitempty"`
}

// Canonical extracts the fields that go into trace_hash / the signature.
func (t Trace) Canonical() CanonicalFields {
	return CanonicalFields{
		AgentID:         t.AgentID,
		TaskDescription: t.TaskDescription,
		Status:          t.Status,
		DurationMs:      t.DurationMs,
		Category:        t.Category,
		CostUSD:         t.CostUSD,
		TokenCount:      t.TokenCount,
		ToolCalls:       t.ToolCalls,
		InputSummary:    t.InputSummary,
		OutputSummary:   t.OutputSummary,
		RuntimeEnv:      t.RuntimeEnv,
		Metadata:        t.Metadata,
		DeclaredPermissions: t.DeclaredPermissions,
		SecurityFlagged:     t.SecurityFlagged,
	}
}

const (
	MaxTaskDescriptionLen = 1000
	MaxSummaryLen         = 500
	MaxMetadataBytes      = 4 * 1024
)
