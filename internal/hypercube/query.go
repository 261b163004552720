package hypercube

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
)

// Operator selects how a filter value is compared with a coordinate.
type Operator string

const (
	OpEqual        Operator = "=="
	OpIn           Operator = "in"
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Valid reports whether o is a known operator. The empty operator is valid
// and means equality.
func (o Operator) Valid() bool {
	switch o {
	case "", OpEqual, OpIn, OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// Ranged reports whether o needs a scan instead of a posting-list lookup.
func (o Operator) Ranged() bool {
	switch o {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// Query returns the records matching every filter, in insertion order.
//
// filters maps dimension names to operands; operators optionally maps the
// same names to an Operator (equality when absent). Equality and "in" are
// answered from posting lists. Range operators are not indexed and scan all
// records. Unknown dimension names are ignored, and a filter set with no known
// dimension returns every record. An unknown operator matches nothing.
func (c *Cube) Query(filters map[string]any, operators map[string]Operator) []Record {
	start := time.Now()

	c.mu.RLock()
	result := c.matchLocked(filters, operators)
	out := make([]Record, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		out = append(out, c.records[it.Next()].clone())
	}
	c.mu.RUnlock()

	c.observeQuery(time.Since(start), len(filters), len(out))
	return out
}

// Count returns how many records match, without copying them.
func (c *Cube) Count(filters map[string]any, operators map[string]Operator) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.matchLocked(filters, operators).GetCardinality())
}

func (c *Cube) matchLocked(filters map[string]any, operators map[string]Operator) *roaring.Bitmap {
	var result *roaring.Bitmap
	for name, operand := range filters {
		dim, ok := DimensionIndex(name)
		if !ok {
			continue
		}
		set := c.evaluateLocked(dim, operators[name], operand)
		if result == nil {
			result = set
		} else {
			result.And(set)
		}
		if result.IsEmpty() {
			return result
		}
	}
	if result == nil {
		result = roaring.New()
		result.AddRange(0, uint64(len(c.records)))
	}
	return result
}

func (c *Cube) evaluateLocked(dim int, op Operator, operand any) *roaring.Bitmap {
	switch op {
	case "", OpEqual:
		return c.postings.lookup(dim, operand)
	case OpIn:
		return c.postings.lookupAny(dim, candidates(operand))
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return c.scanLocked(dim, op, operand)
	}
	c.logger.Debug("unknown query operator",
		zap.String("dimension", DimensionNames[dim]),
		zap.String("operator", string(op)))
	return roaring.New()
}

// scanLocked evaluates a range operator against every record.
func (c *Cube) scanLocked(dim int, op Operator, operand any) *roaring.Bitmap {
	out := roaring.New()
	for i := range c.records {
		v := c.records[i].Coordinates[dim]
		if v == nil {
			continue
		}
		cmp, ok := compare(v, operand)
		if !ok {
			continue
		}
		var match bool
		switch op {
		case OpGreater:
			match = cmp > 0
		case OpLess:
			match = cmp < 0
		case OpGreaterEqual:
			match = cmp >= 0
		case OpLessEqual:
			match = cmp <= 0
		}
		if match {
			out.Add(uint32(i))
		}
	}
	return out
}

func (c *Cube) observeQuery(elapsed time.Duration, filters, matched int) {
	c.statsMu.Lock()
	c.totalQueries++
	n := float64(c.totalQueries)
	c.avgQueryNanos = (c.avgQueryNanos*(n-1) + float64(elapsed)) / n
	slow := c.cfg.LatencyBudget > 0 && elapsed > c.cfg.LatencyBudget
	if slow {
		c.slowQueries++
	}
	c.statsMu.Unlock()

	if slow {
		c.logger.Warn("query exceeded latency budget",
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", c.cfg.LatencyBudget),
			zap.Int("filters", filters),
			zap.Int("matched", matched))
	}
}
