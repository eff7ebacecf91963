package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
)

var (
	testPool    *pgxpool.Pool
	testMetrics *metrics.DBMetrics
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		return 1
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		return 1
	}

	testMetrics = metrics.NewDBMetrics(prometheus.NewRegistry())
	testPool, err = Connect(ctx, connStr, testMetrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to test database: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrationsWithLock(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		return 1
	}

	return m.Run()
}

// setupTestDB returns the shared pool with an empty subscribers table.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, err := testPool.Exec(context.Background(), "TRUNCATE subscribers")
	require.NoError(t, err)
	return testPool
}

func TestRunMigrationsWithLock_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RunMigrationsWithLock(ctx, pool))

	var version int
	require.NoError(t, pool.QueryRow(ctx, "SELECT version FROM public.schema_version").Scan(&version))
	assert.Equal(t, 2, version)
}

func TestMetricsTracer_RecordsQueries(t *testing.T) {
	pool := setupTestDB(t)

	_, err := pool.Exec(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(testMetrics.QueryDuration), 1)
	_, err = pool.Exec(context.Background(), "SELECT * FROM no_such_table")
	require.Error(t, err)
	assert.GreaterOrEqual(t, testutil.ToFloat64(testMetrics.ErrorsTotal.WithLabelValues("SELECT")), 1.0)
}
