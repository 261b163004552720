// Package memory mirrors the elephant association graph into Neo4j.
//
// Encoded memories become (:Memory {genome}) nodes tagged (:Tag {name}) and
// linked by ASSOCIATED_WITH relationships in association order.
package memory

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Store handles Neo4j operations for the association graph.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewStore creates a new Neo4j store. Empty user disables authentication.
func NewStore(uri, user, password string, logger *zap.Logger) (*Store, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// EnsureSchema creates the uniqueness constraints the mirror relies on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT memory_genome IF NOT EXISTS FOR (m:Memory) REQUIRE m.genome IS UNIQUE`,
		`CREATE CONSTRAINT tag_name IF NOT EXISTS FOR (t:Tag) REQUIRE t.name IS UNIQUE`,
	} {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
