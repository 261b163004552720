package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/vault-nexus/internal/elephant"
)

// CycleRecord is one logged lifecycle cycle.
type CycleRecord struct {
	ID         int64               `json:"id"`
	Loop       int                 `json:"loop"`
	StartedAt  time.Time           `json:"started_at"`
	DurationMs float64             `json:"duration_ms"`
	Stats      elephant.CycleStats `json:"stats"`
	Generation *int                `json:"generation,omitempty"`
}

// RecordCycle logs a cycle. A snapshot in the report is archived first so
// the cycle can reference it.
func (s *Store) RecordCycle(ctx context.Context, rep elephant.CycleReport) error {
	var gen *int
	if rep.Snapshot != nil {
		if err := s.SaveGeneration(ctx, *rep.Snapshot); err != nil {
			return err
		}
		g := rep.Snapshot.Generation
		gen = &g
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO cycles (loop, started_at, duration_ms, trunk_sorted, herd_validated,
			encoded, generational_passed, echo_amplified, generation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rep.Loop, rep.StartedAt, float64(rep.Duration)/float64(time.Millisecond),
		rep.Stats.TrunkSorted, rep.Stats.HerdValidated, rep.Stats.Encoded,
		rep.Stats.GenerationalPassed, rep.Stats.EchoAmplified, gen,
	)
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", rep.Loop, err)
	}
	return nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, loop, started_at, duration_ms, trunk_sorted, herd_validated,
			encoded, generational_passed, echo_amplified, generation
		FROM cycles
		ORDER BY started_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var c CycleRecord
		if err := rows.Scan(&c.ID, &c.Loop, &c.StartedAt, &c.DurationMs,
			&c.Stats.TrunkSorted, &c.Stats.HerdValidated, &c.Stats.Encoded,
			&c.Stats.GenerationalPassed, &c.Stats.EchoAmplified, &c.Generation); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
