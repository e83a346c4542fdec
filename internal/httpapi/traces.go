package httpapi

import (
	"net/http"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/trace"
	"github.com/garl-network/trust-ledger/internal/signing"
)

type toolCallDTO struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

type submitTraceRequest struct {
	AgentID             string                 `json:"agent_id,omitempty"`
	TaskDescription     string                 `json:"task_description"`
	Status              string                 `json:"status"`
	DurationMs          int64                  `json:"duration_ms"`
	Category            string                 `json:"category"`
	CostUSD             *float64               `json:"cost_usd,omitempty"`
	TokenCount          int64                  `json:"token_count,omitempty"`
	ToolCalls           []toolCallDTO          `json:"tool_calls,omitempty"`
	InputSummary        string                 `json:"input_summary,omitempty"`
	OutputSummary       string                 `json:"output_summary,omitempty"`
	PIIMasked           bool                   `json:"pii_masked,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	RuntimeEnv          string                 `json:"runtime_env,omitempty"`
	DeclaredPermissions []string               `json:"declared_permissions,omitempty"`
	SecurityFlagged     bool                   `json:"security_flagged,omitempty"`
}

func (req submitTraceRequest) toTrace() trace.Trace {
	calls := make([]trace.ToolCall, 0, len(req.ToolCalls))
	for _, c := range req.ToolCalls {
		calls = append(calls, trace.ToolCall{Name: c.Name, DurationMs: c.DurationMs})
	}
	return trace.Trace{
		AgentID:             req.AgentID,
		TaskDescription:     req.TaskDescription,
		Status:              trace.Status(req.Status),
		DurationMs:          req.DurationMs,
		Category:            req.Category,
		CostUSD:             req.CostUSD,
		TokenCount:          req.TokenCount,
		ToolCalls:           calls,
		InputSummary:        req.InputSummary,
		OutputSummary:       req.OutputSummary,
		PIIMasked:           req.PIIMasked,
		Metadata:            req.Metadata,
		RuntimeEnv:          req.RuntimeEnv,
		DeclaredPermissions: req.DeclaredPermissions,
		SecurityFlagged:     req.SecurityFlagged,
	}
}

type submitTraceResponse struct {
	TraceID     string               `json:"trace_id"`
	TrustDelta  float64              `json:"trust_delta"`
	Certificate signing.Certificate  `json:"certificate"`
}

func (h *Handler) handleSubmitTrace(w http.ResponseWriter, r *http.Request) {
	var req submitTraceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.pipeline.Submit(r.Context(), apiKeyHashFrom(r.Context()), req.toTrace())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitTraceResponse{
		TraceID:     result.TraceID,
		TrustDelta:  result.TrustDelta,
		Certificate: result.Certificate,
	})
}

type submitBatchRequest struct {
	Traces []submitTraceRequest `json:"traces"`
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	traces := make([]trace.Trace, 0, len(req.Traces))
	for _, t := range req.Traces {
		traces = append(traces, t.toTrace())
	}
	result, err := h.pipeline.SubmitBatch(r.Context(), apiKeyHashFrom(r.Context()), traces)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	var cert signing.Certificate
	if !decodeJSON(w, r, &cert) {
		return
	}
	ok, err := signing.Verify(cert)
	if err != nil {
		writeError(w, apierr.Validation("certificate", "malformed certificate: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}
