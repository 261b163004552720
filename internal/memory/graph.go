package memory

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/vault-nexus/internal/elephant"
	"go.uber.org/zap"
)

// Neighbor is an associated memory read back from the graph.
type Neighbor struct {
	Genome string   `json:"genome"`
	Rank   int      `json:"rank"`
	Tags   []string `json:"tags"`
}

// linkRows flattens links into Cypher parameters.
func linkRows(links []elephant.MemoryLinks) []any {
	rows := make([]any, 0, len(links))
	for _, l := range links {
		tags := make([]any, len(l.Tags))
		for i, t := range l.Tags {
			tags[i] = t
		}
		assoc := make([]any, len(l.Associations))
		for i, a := range l.Associations {
			assoc[i] = a
		}
		rows = append(rows, map[string]any{
			"genome":       l.Genome,
			"tags":         tags,
			"associations": assoc,
		})
	}
	return rows
}

// UpsertLinks mirrors encoded memories, their tags and their associations.
// Re-running with the same links leaves the graph unchanged.
func (s *Store) UpsertLinks(ctx context.Context, links []elephant.MemoryLinks) error {
	if len(links) == 0 {
		return nil
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`UNWIND $rows AS row
			 MERGE (m:Memory {genome: row.genome})
			 ON CREATE SET m.encoded_at = datetime()
			 WITH m, row
			 UNWIND row.tags AS tag
			 MERGE (t:Tag {name: tag})
			 MERGE (m)-[:TAGGED_WITH]->(t)`,
			map[string]any{"rows": linkRows(links)})
		if err != nil {
			return nil, err
		}
		_, err = tx.Run(ctx,
			`UNWIND $rows AS row
			 MERGE (m:Memory {genome: row.genome})
			 WITH m, row
			 UNWIND range(0, size(row.associations) - 1) AS i
			 MERGE (o:Memory {genome: row.associations[i]})
			 MERGE (m)-[r:ASSOCIATED_WITH]->(o)
			 SET r.rank = i`,
			map[string]any{"rows": linkRows(links)})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("upsert links: %w", err)
	}
	s.logger.Debug("association graph updated", zap.Int("memories", len(links)))
	return nil
}

// Neighbors returns the memories genome is associated with, in rank order.
func (s *Store) Neighbors(ctx context.Context, genome string) ([]Neighbor, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (:Memory {genome: $genome})-[r:ASSOCIATED_WITH]->(o:Memory)
		 OPTIONAL MATCH (o)-[:TAGGED_WITH]->(t:Tag)
		 RETURN o.genome AS genome, r.rank AS rank, collect(t.name) AS tags
		 ORDER BY rank ASC`,
		map[string]any{"genome": genome})
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", genome, err)
	}

	var out []Neighbor
	for result.Next(ctx) {
		rec := result.Record()
		g, _ := rec.Get("genome")
		rank, _ := rec.Get("rank")
		tags, _ := rec.Get("tags")
		n := Neighbor{Genome: g.(string)}
		if r, ok := rank.(int64); ok {
			n.Rank = int(r)
		}
		if list, ok := tags.([]any); ok {
			for _, t := range list {
				if name, ok := t.(string); ok {
					n.Tags = append(n.Tags, name)
				}
			}
		}
		out = append(out, n)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", genome, err)
	}
	return out, nil
}
