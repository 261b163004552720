package hypercube

import (
	"time"

	"github.com/nidhogg/vault-nexus/internal/genome"
)

// Coordinates is the projection of a record onto the dimension schema. A nil
// slot means the record does not carry that dimension.
type Coordinates [DimensionCount]any

// Record is one stored data point.
type Record struct {
	Hash        string         `json:"hash"`
	Content     map[string]any `json:"content"`
	Coordinates Coordinates    `json:"coordinates"`
	Timestamp   time.Time      `json:"timestamp"`

	// Overflow holds the content keys outside the schema.
	Overflow map[string]any `json:"-"`
}

// Present returns the number of schema dimensions the record carries.
func (c *Coordinates) Present() int {
	n := 0
	for _, v := range c {
		if v != nil {
			n++
		}
	}
	return n
}

// project splits content into the schema projection and the overflow map.
func project(content map[string]any) (Coordinates, map[string]any) {
	var coords Coordinates
	var overflow map[string]any
	for k, v := range content {
		if i, ok := DimensionIndex(k); ok {
			coords[i] = v
			continue
		}
		if overflow == nil {
			overflow = make(map[string]any)
		}
		overflow[k] = v
	}
	return coords, overflow
}

func (r Record) clone() Record {
	out := r
	out.Content = genome.Clone(r.Content)
	out.Coordinates, out.Overflow = project(out.Content)
	return out
}
