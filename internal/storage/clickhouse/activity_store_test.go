package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-fund-dao/internal/events"
	"solana-fund-dao/internal/storage/clickhouse"
	"solana-fund-dao/internal/storage/migrations"
)

// setupTestDB creates a ClickHouse container and applies the embedded migrations.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*clickhouse.Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/fund_test", host, port.Port())

	conn, applied, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err)
	require.Equal(t, []string{"001_fund_activity.sql"}, applied)

	// A second run finds every file recorded.
	again, reapplied, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err)
	require.Empty(t, reapplied)
	again.Close()

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

func TestActivityStore_PublishAndList(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := clickhouse.NewActivityStore(conn)

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	created := events.New(events.KindFundCreated, "fund1", t0)
	created.Actor = "alice"
	created.Amount = 100

	executed := events.New(events.KindProposalExecuted, "fund1", t0.Add(time.Minute))
	executed.ProposalID = "prop1"
	executed.Amount = 80
	executed.State = "EXECUTED"

	other := events.New(events.KindFundCreated, "fund2", t0)

	for _, e := range []events.Event{executed, created, other} {
		require.NoError(t, store.Publish(ctx, e))
	}

	got, err := store.ListByFund(ctx, "fund1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, created.ID, got[0].ID)
	assert.Equal(t, events.KindFundCreated, got[0].Kind)
	assert.Equal(t, "alice", got[0].Actor)
	assert.Equal(t, uint64(80), got[1].Amount)
	assert.Equal(t, "prop1", got[1].ProposalID)
	assert.True(t, got[1].OccurredAt.Equal(t0.Add(time.Minute)))

	counts, err := store.CountByKind(ctx, "fund1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), counts[events.KindFundCreated])
	assert.Equal(t, uint64(1), counts[events.KindProposalExecuted])
}
