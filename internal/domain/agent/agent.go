// Package agent models the registered-agent entity and its reputation
// state. Mutations are applied only by the reputation and endorsement
// engines in response to traces, endorsements, and decay; the HTTP/storage
// layers never hand-edit a score field.
package agent

import "time"

// Category is the closed set of task domains an agent can be registered
// under. Used both to resolve category benchmarks and to scope routing.
type Category string

const (
	CategoryCoding      Category = "coding"
	CategoryResearch    Category = "research"
	CategorySales       Category = "sales"
	CategoryData        Category = "data"
	CategoryAutomation  Category = "automation"
	CategoryOther       Category = "other"
)

// ValidCategories lists every closed Category value, for validation.
var ValidCategories = map[Category]bool{
	CategoryCoding:     true,
	CategoryResearch:   true,
	CategorySales:      true,
	CategoryData:       true,
	CategoryAutomation: true,
	CategoryOther:      true,
}

// Tier is the coarse certification bucket over the composite trust score.
type Tier string

const (
	TierBronze     Tier = "bronze"
	TierSilver     Tier = "silver"
	TierGold       Tier = "gold"
	TierEnterprise Tier = "enterprise"
)

// tierRank gives each tier a total order for "min_tier" routing filters.
var tierRank = map[Tier]int{
	TierBronze:     0,
	TierSilver:     1,
	TierGold:       2,
	TierEnterprise: 3,
}

// AtLeast reports whether t is the same tier as, or ranks above, other.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// TierForScore is the pure function mapping a composite trust score to its
// certification tier: bronze <40, silver [40,70), gold [70,90),
// enterprise >=90.
func TierForScore(score float64) Tier {
	switch {
	case score >= 90:
		return TierEnterprise
	case score >= 70:
		return TierGold
	case score >= 40:
		return TierSilver
	default:
		return TierBronze
	}
}

// AnomalySeverity is warning or critical.
type AnomalySeverity string

const (
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyType enumerates the closed set of anomalies the reputation engine
// can detect.
type AnomalyType string

const (
	AnomalyUnexpectedFailure AnomalyType = "unexpected_failure"
	AnomalyDurationSpike     AnomalyType = "duration_spike"
	AnomalyCostSpike         AnomalyType = "cost_spike"
)

// AnomalyFlag is one detected anomaly attached to an agent.
type AnomalyFlag struct {
	Type            AnomalyType
	Severity        AnomalySeverity
	Message         string
	Archived        bool
	DetectedAt      time.Time
	CleanStreak     int // consecutive clean traces since detection, drives warning auto-archive
}

// Dimensions is the five-dimensional score vector the reputation engine
// maintains as an EMA, each clamped to [0, 100].
type Dimensions struct {
	Reliability    float64
	Security       float64
	Speed          float64
	CostEfficiency float64
	Consistency    float64
}

// Agent is the full registered-agent record.
type Agent struct {
	ID           string
	SovereignID  string // did:garl:<id>
	Name         string
	Description  string
	Framework    string
	Category     Category
	APIKeyHash   string
	Permissions  []string
	Metadata     map[string]string
	IsSandbox    bool
	IsDeleted    bool

	Dimensions Dimensions
	TrustScore float64
	Tier       Tier

	TotalTraces          int
	SuccessCount         int
	SuccessRate          float64
	ConsecutiveSuccesses int
	AvgDurationMs        float64
	TotalCostUSD         float64

	RecentReliabilityObs []float64 // rolling window for consistency variance, capped at N=20
	RecentOutcomes       []bool    // rolling window of success/failure, capped at 50, drives unexpected_failure detection

	AnomalyFlags []AnomalyFlag

	EndorsementScore float64
	EndorsementCount int

	LastTraceAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DID builds the sovereign identifier for an agent ID.
func DID(agentID string) string {
	return "did:garl:" + agentID
}

// NewDefault builds a freshly registered agent: all dimensions and the
// composite trust score start at 50, which falls in TierForScore's
// [40,70) bucket, so a brand new agent starts at silver.
func NewDefault(id, name string, category Category) Agent {
	now := time.Now().UTC()
	return Agent{
		ID:          id,
		SovereignID: DID(id),
		Name:        name,
		Category:    category,
		Dimensions: Dimensions{
			Reliability:    50,
			Security:       50,
			Speed:          50,
			CostEfficiency: 50,
			Consistency:    50,
		},
		TrustScore: 50,
		Tier:       TierForScore(50),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Verified reports whether the agent has accumulated enough traces to be
// considered verified (at least 10 total traces).
func (a Agent) Verified() bool {
	return a.TotalTraces >= 10
}

// HasCriticalAnomaly reports whether any unarchived anomaly flag is
// critical, used by routing exclusion.
func (a Agent) HasCriticalAnomaly() bool {
	for _, f := range a.AnomalyFlags {
		if !f.Archived && f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ActiveAnomalies returns unarchived flags only.
func (a Agent) ActiveAnomalies() []AnomalyFlag {
	out := make([]AnomalyFlag, 0, len(a.AnomalyFlags))
	for _, f := range a.AnomalyFlags {
		if !f.Archived {
			out = append(out, f)
		}
	}
	return out
}

// Clamp clamps every score in-place to [0, 100]. Called after every
// mutation by the reputation engine before persistence.
func (d *Dimensions) Clamp() {
	d.Reliability = clamp(d.Reliability)
	d.Security = clamp(d.Security)
	d.Speed = clamp(d.Speed)
	d.CostEfficiency = clamp(d.CostEfficiency)
	d.Consistency = clamp(d.Consistency)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Composite computes the weighted trust score from the five dimensions:
// weights fixed at 30/20/15/10/25, summing to 100.
func (d Dimensions) Composite() float64 {
	return 0.30*d.Reliability + 0.20*d.Security + 0.15*d.Speed + 0.10*d.CostEfficiency + 0.25*d.Consistency
}

// EffectiveTrustScore folds the accumulated endorsement bonus into the
// persisted composite, clamped to 100. This is the score shown to callers
// deciding whether to delegate to the agent; EndorsementScore never
// changes TrustScore itself, only what gets reported alongside it.
func (a Agent) EffectiveTrustScore() float64 {
	return clamp(a.TrustScore + a.EndorsementScore)
}

// EffectiveTier recomputes the certification tier from EffectiveTrustScore
// rather than the persisted, pre-endorsement Tier field.
func (a Agent) EffectiveTier() Tier {
	return TierForScore(a.EffectiveTrustScore())
}
