//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// startNeo4j starts a Neo4j testcontainer and returns its bolt URI.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	return uri, func() { testcontainers.TerminateContainer(container) }, nil
}

// startPostgres starts a PostgreSQL testcontainer and returns its DSN.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("nexus_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	return dsn, func() { testcontainers.TerminateContainer(container) }, nil
}

// startRedis starts a Redis testcontainer and returns a redis:// URL.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		testcontainers.TerminateContainer(container)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	return "redis://" + endpoint, func() { testcontainers.TerminateContainer(container) }, nil
}

// container starts a backend or skips the test when Docker is unavailable.
func container(t *testing.T, start func(context.Context) (string, func(), error)) string {
	t.Helper()
	if testing.Short() {
		t.Skip("container tests skipped in -short mode")
	}
	addr, cleanup, err := start(context.Background())
	if err != nil {
		t.Skipf("container unavailable: %v", err)
	}
	t.Cleanup(cleanup)
	return addr
}
