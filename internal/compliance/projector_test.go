package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/agent"
	"github.com/garl-network/trust-ledger/internal/domain/endorsement"
	"github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
)

func TestReportAggregatesEndorsementsAndAnomalies(t *testing.T) {
	store := memory.New()

	target := agent.NewDefault("", "Target", agent.CategoryCoding)
	target.TotalTraces = 12
	target.SuccessRate = 91.5
	target.AvgDurationMs = 2300
	target.Permissions = []string{"read_files", "send_email"}
	target.AnomalyFlags = []agent.AnomalyFlag{
		{Type: agent.AnomalyDurationSpike, Severity: agent.SeverityWarning, Archived: true},
		{Type: agent.AnomalyCostSpike, Severity: agent.SeverityCritical, Archived: false},
	}
	created, err := store.CreateAgent(context.Background(), target)
	require.NoError(t, err)

	_, err = store.InsertEndorsement(context.Background(), endorsement.Endorsement{
		EndorserID: "endorser-a", TargetID: created.ID, BonusApplied: 1.5,
	})
	require.NoError(t, err)
	_, err = store.InsertEndorsement(context.Background(), endorsement.Endorsement{
		EndorserID: created.ID, TargetID: "someone-else", BonusApplied: 0.8,
	})
	require.NoError(t, err)

	svc := New(store, store, reputation.DefaultConfig())
	report, err := svc.Report(context.Background(), created.ID)
	require.NoError(t, err)

	require.Equal(t, 12, report.SLA.TotalExecutions)
	require.InDelta(t, 91.5, report.SLA.UptimePercent, 0.001)
	require.Len(t, report.ActiveAnomalies, 1)
	require.Len(t, report.ArchivedAnomalies, 1)
	require.Equal(t, 1, report.EndorsementsReceived.Count)
	require.InDelta(t, 1.5, report.EndorsementsReceived.CumulativeBonus, 0.001)
	require.Equal(t, 1, report.EndorsementsGiven.Count)
	require.InDelta(t, 0.8, report.EndorsementsGiven.CumulativeBonus, 0.001)
	require.Equal(t, []string{"read_files", "send_email"}, report.DeclaredPermissions)
}

func TestReportAppliesDecayBeforeProjecting(t *testing.T) {
	store := memory.New()

	a := agent.NewDefault("", "Dormant", agent.CategoryCoding)
	a.TrustScore = 70
	a.Dimensions = agent.Dimensions{Reliability: 70, Security: 70, Speed: 70, CostEfficiency: 70, Consistency: 70}
	past := time.Now().UTC().Add(-100 * 24 * time.Hour)
	a.LastTraceAt = &past
	created, err := store.CreateAgent(context.Background(), a)
	require.NoError(t, err)

	svc := New(store, store, reputation.DefaultConfig())
	report, err := svc.Report(context.Background(), created.ID)
	require.NoError(t, err)
	require.Less(t, report.TrustScore, 70.0)
}
