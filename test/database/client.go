// Package database provides the shared PostgreSQL harness for integration
// tests. In CI (CI_DATABASE_URL set) it connects to an external service
// container; locally it starts a pgvector-enabled testcontainer.
package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/database"
)

// NewTestClient creates a migrated database client for one test. The
// container and connection are cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, config.DatabaseConfig{
		URL:             connectionString(t, ctx),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func connectionString(t *testing.T, ctx context.Context) string {
	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("TEST_DATABASE") == "" {
		t.Skip("set TEST_DATABASE=1 (or CI_DATABASE_URL) to run database integration tests")
	}

	// The schema needs the vector extension, so plain postgres images
	// will not do.
	container, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("agentcore_test"),
		tcpostgres.WithUsername("agentcore"),
		tcpostgres.WithPassword("agentcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}
