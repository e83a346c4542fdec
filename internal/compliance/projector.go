// Package compliance implements a pure read-side assembly of a CISO-style
// report from an agent's current state, its endorsement edges, and its
// anomaly log. Its only write is persisting the lazy decay of a dormant
// agent before projecting, as the verdict package does; it uses the same
// struct-returning Service shape as the verdict package.
package compliance

import (
	"context"
	"time"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/endorsement"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/storage"
)

// SLAMetrics summarises an agent's operational track record.
type SLAMetrics struct {
	UptimePercent    float64 // success_rate
	AvgLatencyMs     float64
	TotalExecutions  int
	TierQualifies    agent.Tier
}

// EndorsementSummary aggregates one direction of the endorsement graph.
type EndorsementSummary struct {
	Count          int
	CumulativeBonus float64
	Edges          []endorsement.Endorsement
}

// Report is the full compliance projection for one agent.
type Report struct {
	AgentID             string
	SLA                 SLAMetrics
	ActiveAnomalies     []agent.AnomalyFlag
	ArchivedAnomalies   []agent.AnomalyFlag
	EndorsementsReceived EndorsementSummary
	EndorsementsGiven   EndorsementSummary
	DeclaredPermissions []string
	Dimensions          agent.Dimensions
	TrustScore          float64
	CertificationTier   agent.Tier
	GeneratedAt         time.Time
}

// Service produces compliance reports.
type Service struct {
	agents storage.AgentStore
	edges  storage.EndorsementStore
	repCfg reputation.Config
}

// New constructs a compliance Service.
func New(agents storage.AgentStore, edges storage.EndorsementStore, repCfg reputation.Config) *Service {
	return &Service{agents: agents, edges: edges, repCfg: repCfg}
}

// Report assembles the compliance report for agentID. Decay is applied and
// persisted first, same as a trust verdict, so the report reflects the
// agent's true current standing rather than a stale pre-decay snapshot.
func (s *Service) Report(ctx context.Context, agentID string) (Report, error) {
	a, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return Report{}, apierr.NotFound("agent", agentID)
	}

	decayed, event := reputation.ApplyDecay(s.repCfg, a, time.Now().UTC())
	if event != nil {
		if _, err := s.agents.UpdateAgent(ctx, decayed); err != nil {
			return Report{}, apierr.Storage("persist decayed agent", err)
		}
		a = decayed
	}

	received, err := s.edges.ListEndorsementsFor(ctx, agentID)
	if err != nil {
		return Report{}, apierr.Storage("list endorsements received", err)
	}
	given, err := s.edges.ListEndorsementsGiven(ctx, agentID)
	if err != nil {
		return Report{}, apierr.Storage("list endorsements given", err)
	}

	return Report{
		AgentID: a.ID,
		SLA: SLAMetrics{
			UptimePercent:   a.SuccessRate,
			AvgLatencyMs:    a.AvgDurationMs,
			TotalExecutions: a.TotalTraces,
			TierQualifies:   a.Tier,
		},
		ActiveAnomalies:      a.ActiveAnomalies(),
		ArchivedAnomalies:    archivedAnomalies(a),
		EndorsementsReceived: summarize(received),
		EndorsementsGiven:    summarize(given),
		DeclaredPermissions:  append([]string(nil), a.Permissions...),
		Dimensions:           a.Dimensions,
		TrustScore:           a.TrustScore,
		CertificationTier:    a.Tier,
		GeneratedAt:          time.Now().UTC(),
	}, nil
}

func archivedAnomalies(a agent.Agent) []agent.AnomalyFlag {
	out := make([]agent.AnomalyFlag, 0, len(a.AnomalyFlags))
	for _, f := range a.AnomalyFlags {
		if f.Archived {
			out = append(out, f)
		}
	}
	return out
}

func summarize(edges []endorsement.Endorsement) EndorsementSummary {
	sum := EndorsementSummary{Count: len(edges), Edges: edges}
	for _, e := range edges {
		sum.CumulativeBonus += e.BonusApplied
	}
	return sum
}
