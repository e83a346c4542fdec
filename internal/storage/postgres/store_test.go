package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/storage"
)

func TestGetAgentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM agents WHERE id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	store := New(db)
	_, err = store.GetAgent(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAgentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE agents SET is_deleted=true").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := New(db)
	err = store.DeleteAgent(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEndorsementExistsQueriesBoolean(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("endorser-1", "target-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := New(db)
	exists, err := store.EndorsementExists(context.Background(), "endorser-1", "target-1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentHistoryQueriesAcrossAgentsNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "agent_id", "trust_score", "reliability", "security", "speed", "cost_efficiency", "consistency",
		"event_type", "trust_delta", "anomaly_ref", "created_at",
	}).
		AddRow("h2", "agent-b", 61.0, 60.0, 60.0, 60.0, 60.0, 60.0, string(reputation.EventTraceRecorded), 1.0, nil, now).
		AddRow("h1", "agent-a", 55.0, 50.0, 50.0, 50.0, 50.0, 50.0, string(reputation.EventTraceRecorded), 0.5, nil, now.Add(-time.Minute))

	mock.ExpectQuery("SELECT .* FROM reputation_history ORDER BY created_at DESC LIMIT").
		WithArgs(2).
		WillReturnRows(rows)

	store := New(db)
	entries, err := store.ListRecentHistory(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "agent-b", entries[0].AgentID)
	require.Equal(t, "agent-a", entries[1].AgentID)

	require.NoError(t, mock.ExpectationsWereMet())
}
