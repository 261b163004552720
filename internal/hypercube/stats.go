package hypercube

import "time"

// Stats is a point-in-time view of the cube.
type Stats struct {
	TotalStored     int           `json:"total_stored"`
	TotalQueries    int64         `json:"total_queries"`
	SlowQueries     int64         `json:"slow_queries"`
	AvgQueryTime    time.Duration `json:"-"`
	AvgQueryMillis  float64       `json:"avg_query_time_ms"`
	LatencyBudgetMs int64         `json:"latency_budget_ms"`
	Pool            float64       `json:"care_pool"`
	MandateFraction float64       `json:"care_mandate"`
	PoolField       string        `json:"pool_field"`
	Dimensions      int           `json:"dimensions"`
	DimensionNames  []string      `json:"dimension_names"`
	UniqueGenomes   int           `json:"unique_genomes"`
	IndexedValues   int           `json:"indexed_values"`
}

// Stats returns running counters and configuration.
func (c *Cube) Stats() Stats {
	c.mu.RLock()
	s := Stats{
		TotalStored:     len(c.records),
		Pool:            c.pool,
		MandateFraction: c.cfg.MandateFraction,
		PoolField:       c.cfg.PoolField,
		LatencyBudgetMs: c.cfg.LatencyBudget.Milliseconds(),
		Dimensions:      DimensionCount,
		DimensionNames:  Dimensions(),
		UniqueGenomes:   len(c.byHash),
		IndexedValues:   c.postings.size(),
	}
	c.mu.RUnlock()

	c.statsMu.Lock()
	s.TotalQueries = c.totalQueries
	s.SlowQueries = c.slowQueries
	s.AvgQueryTime = time.Duration(c.avgQueryNanos)
	c.statsMu.Unlock()

	s.AvgQueryMillis = float64(s.AvgQueryTime) / float64(time.Millisecond)
	return s
}
