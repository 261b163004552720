package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/vault-nexus/internal/elephant"
)

// SaveGeneration archives a snapshot. Saving the same generation twice
// keeps the first copy.
func (s *Store) SaveGeneration(ctx context.Context, snap elephant.GenerationSnapshot) error {
	tags, err := json.Marshal(snap.TopTags)
	if err != nil {
		return fmt.Errorf("marshal top tags: %w", err)
	}
	phases, err := json.Marshal(snap.PhaseCounts)
	if err != nil {
		return fmt.Errorf("marshal phase counts: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO generations (generation, taken_at, total_memories, avg_strength, top_tags, phase_counts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (generation) DO NOTHING`,
		snap.Generation, snap.Timestamp, snap.TotalMemories, snap.AvgStrength, tags, phases,
	)
	if err != nil {
		return fmt.Errorf("save generation %d: %w", snap.Generation, err)
	}
	return nil
}

// ListGenerations returns archived snapshots in generation order.
func (s *Store) ListGenerations(ctx context.Context) ([]elephant.GenerationSnapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT generation, taken_at, total_memories, avg_strength, top_tags, phase_counts
		FROM generations
		ORDER BY generation ASC`)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []elephant.GenerationSnapshot
	for rows.Next() {
		var (
			snap   elephant.GenerationSnapshot
			tags   []byte
			phases []byte
		)
		if err := rows.Scan(&snap.Generation, &snap.Timestamp, &snap.TotalMemories, &snap.AvgStrength, &tags, &phases); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if err := json.Unmarshal(tags, &snap.TopTags); err != nil {
			return nil, fmt.Errorf("decode top tags of generation %d: %w", snap.Generation, err)
		}
		if err := json.Unmarshal(phases, &snap.PhaseCounts); err != nil {
			return nil, fmt.Errorf("decode phase counts of generation %d: %w", snap.Generation, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
