// Package endorsement implements the Sybil-resistant endorsement graph:
// one agent vouching for another, weighted by the endorser's own standing
// so low-reputation or thin-history endorsers contribute nothing.
package endorsement

import (
	"context"
	"time"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/endorsement"
	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/storage"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

// MaxBonus caps the trust_score contribution a single endorsement can add
// to the target's endorsement_score.
const MaxBonus = 2.0

var tierMultiplier = map[agent.Tier]float64{
	agent.TierBronze:     0.5,
	agent.TierSilver:     1.0,
	agent.TierGold:       1.5,
	agent.TierEnterprise: 2.0,
}

// Service runs the endorse operation.
type Service struct {
	agents  storage.AgentStore
	edges   storage.EndorsementStore
	history storage.ReputationHistoryStore
	locks   storage.Locker
	log     *logger.Logger
}

// New constructs an endorsement Service.
func New(agents storage.AgentStore, edges storage.EndorsementStore, history storage.ReputationHistoryStore, locks storage.Locker, log *logger.Logger) *Service {
	return &Service{agents: agents, edges: edges, history: history, locks: locks, log: log}
}

// Endorse records endorserID vouching for targetID.
func (s *Service) Endorse(ctx context.Context, endorserID, targetID, context_ string) (endorsement.Endorsement, error) {
	if endorserID == targetID {
		return endorsement.Endorsement{}, apierr.New(apierr.CodeValidation, "an agent cannot endorse itself")
	}

	exists, err := s.edges.EndorsementExists(ctx, endorserID, targetID)
	if err != nil {
		return endorsement.Endorsement{}, apierr.Storage("check existing endorsement", err)
	}
	if exists {
		return endorsement.Endorsement{}, apierr.Duplicate("this endorsement already exists")
	}

	endorser, err := s.agents.GetAgent(ctx, endorserID)
	if err != nil {
		return endorsement.Endorsement{}, apierr.NotFound("agent", endorserID)
	}

	s.locks.Lock(targetID)
	defer s.locks.Unlock(targetID)

	target, err := s.agents.GetAgent(ctx, targetID)
	if err != nil {
		return endorsement.Endorsement{}, apierr.NotFound("agent", targetID)
	}

	bonus, multiplier := computeBonus(endorser)

	edge := endorsement.Endorsement{
		EndorserID:     endorserID,
		TargetID:       targetID,
		EndorserScore:  endorser.TrustScore,
		EndorserTraces: endorser.TotalTraces,
		EndorserTier:   string(endorser.Tier),
		BonusApplied:   bonus,
		TierMultiplier: multiplier,
		Context:        context_,
	}

	inserted, err := s.edges.InsertEndorsement(ctx, edge)
	if err != nil {
		return endorsement.Endorsement{}, apierr.Storage("insert endorsement", err)
	}

	target.EndorsementScore += bonus
	target.EndorsementCount++
	target.UpdatedAt = time.Now().UTC()
	if _, err := s.agents.UpdateAgent(ctx, target); err != nil {
		return endorsement.Endorsement{}, apierr.Storage("update target agent", err)
	}

	if _, err := s.history.InsertHistory(ctx, reputation.HistoryEntry{
		AgentID:        target.ID,
		TrustScore:     target.TrustScore,
		Reliability:    target.Dimensions.Reliability,
		Security:       target.Dimensions.Security,
		Speed:          target.Dimensions.Speed,
		CostEfficiency: target.Dimensions.CostEfficiency,
		Consistency:    target.Dimensions.Consistency,
		EventType:      reputation.EventEndorsement,
		TrustDelta:     0,
	}); err != nil {
		s.log.WithError(err).Warn("failed to record endorsement history")
	}

	return inserted, nil
}

// computeBonus implements the weighted bonus formula:
// bonus = w_score * w_traces * tier_multiplier. The three factors cap at
// 1, 1, and 2.0 respectively, so the product already never exceeds
// MaxBonus. Endorsers below a 60 score or with fewer than 10 traces
// produce 0 whatever their tier.
func computeBonus(endorser agent.Agent) (bonus, multiplier float64) {
	wScore := (endorser.TrustScore - 60) / 40
	if wScore < 0 {
		wScore = 0
	}
	if wScore > 1 {
		wScore = 1
	}

	wTraces := float64(endorser.TotalTraces) / 10
	if wTraces > 1 {
		wTraces = 1
	}
	if endorser.TotalTraces < 10 {
		wTraces = 0
	}

	multiplier = tierMultiplier[endorser.Tier]
	bonus = wScore * wTraces * multiplier
	if bonus > MaxBonus {
		bonus = MaxBonus
	}
	return bonus, multiplier
}
