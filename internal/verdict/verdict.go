// Package verdict implements the trust verdict and routing engine: a
// projection over an agent's current state that applies lazy decay
// (persisting it when it moves the score) before producing a
// recommendation, and the category-scoped
// routing query over the agent population.
package verdict

import (
	"context"
	"time"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/storage"
)

// Recommendation is the closed set of routing recommendations.
type Recommendation string

const (
	RecommendationTrusted           Recommendation = "trusted"
	RecommendationTrustedMonitoring Recommendation = "trusted_with_monitoring"
	RecommendationProceedMonitoring Recommendation = "proceed_with_monitoring"
	RecommendationCaution           Recommendation = "caution"
	RecommendationDoNotDelegate     Recommendation = "do_not_delegate"
)

// RiskLevel is the closed set of risk levels accompanying a Recommendation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Verdict is the full trust assessment for one agent.
type Verdict struct {
	AgentID            string
	TrustScore         float64
	Verified           bool
	RiskLevel          RiskLevel
	Recommendation     Recommendation
	CertificationTier  agent.Tier
	Dimensions         agent.Dimensions
	Anomalies          []agent.AnomalyFlag
	LastActive         *time.Time
}

// Service produces verdicts and routes requests over the agent population.
type Service struct {
	agents storage.AgentStore
	repCfg reputation.Config
}

// New constructs a verdict Service.
func New(agents storage.AgentStore, repCfg reputation.Config) *Service {
	return &Service{agents: agents, repCfg: repCfg}
}

// Verdict computes the current trust verdict for agentID, applying decay
// first and persisting it if it moved the score.
func (s *Service) Verdict(ctx context.Context, agentID string) (Verdict, error) {
	a, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return Verdict{}, apierr.NotFound("agent", agentID)
	}

	decayed, event := reputation.ApplyDecay(s.repCfg, a, time.Now().UTC())
	if event != nil {
		if _, err := s.agents.UpdateAgent(ctx, decayed); err != nil {
			return Verdict{}, apierr.Storage("persist decayed agent", err)
		}
		a = decayed
	}

	effScore := a.EffectiveTrustScore()
	rec, risk := recommend(a, effScore)

	return Verdict{
		AgentID:           a.ID,
		TrustScore:        effScore,
		Verified:          a.Verified(),
		RiskLevel:         risk,
		Recommendation:    rec,
		CertificationTier: a.EffectiveTier(),
		Dimensions:        a.Dimensions,
		Anomalies:         a.ActiveAnomalies(),
		LastActive:        a.LastTraceAt,
	}, nil
}

// recommend evaluates the recommendation table top-down against the
// effective (endorsement-inclusive) score, first match wins.
func recommend(a agent.Agent, score float64) (Recommendation, RiskLevel) {
	hasActiveAnomaly := len(a.ActiveAnomalies()) > 0

	switch {
	case score >= 75 && a.Verified() && !hasActiveAnomaly:
		return RecommendationTrusted, RiskLow
	case score >= 60 && a.Verified():
		return RecommendationTrustedMonitoring, RiskLow
	case score >= 50:
		return RecommendationProceedMonitoring, RiskMedium
	case score >= 25:
		return RecommendationCaution, RiskHigh
	default:
		return RecommendationDoNotDelegate, RiskCritical
	}
}

// Route returns up to limit agents in category with tier >= minTier,
// excluding deleted, sandboxed, and critically-anomalous agents, ranked by
// trust_score descending then total_traces descending.
func (s *Service) Route(ctx context.Context, category agent.Category, minTier agent.Tier, limit int) ([]agent.Agent, error) {
	if !agent.ValidCategories[category] {
		return nil, apierr.Validation("category", "must be a known category")
	}
	candidates, err := s.agents.RouteCandidates(ctx, category, minTier, limit)
	if err != nil {
		return nil, apierr.Storage("list route candidates", err)
	}
	return candidates, nil
}
