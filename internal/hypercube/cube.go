// Package hypercube implements the 40-dimension indexed record store.
//
// Every stored record is projected onto a fixed schema of forty named
// dimensions. Equality and set-membership queries are answered from
// per-dimension posting lists; range queries scan. Store never deduplicates:
// storing identical content twice yields the same genome and two entries.
package hypercube

import (
	"sync"
	"time"

	"github.com/nidhogg/vault-nexus/internal/genome"
	"go.uber.org/zap"
)

// Config controls redistribution and query instrumentation.
type Config struct {
	// MandateFraction is the share of PoolField added to the pool per record.
	MandateFraction float64
	// PoolField names the numeric content field feeding the pool.
	PoolField string
	// LatencyBudget is advisory: slower queries are logged and counted, never aborted.
	LatencyBudget time.Duration
}

// DefaultConfig returns the 15% mandate on "value" with a 9s budget.
func DefaultConfig() Config {
	return Config{
		MandateFraction: 0.15,
		PoolField:       "value",
		LatencyBudget:   9 * time.Second,
	}
}

// Cube owns the record set, its posting lists and the redistribution pool.
// One RWMutex guards records, postings and pool so readers never see a
// record without its postings.
type Cube struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	records  []Record
	postings *postingIndex
	byHash   map[string][]uint32
	pool     float64
	observer func(Record)

	statsMu       sync.Mutex
	totalQueries  int64
	avgQueryNanos float64
	slowQueries   int64
}

// New creates an empty cube.
func New(cfg Config, logger *zap.Logger) *Cube {
	if cfg.PoolField == "" {
		cfg.PoolField = DefaultConfig().PoolField
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cube{
		cfg:      cfg,
		logger:   logger,
		postings: newPostingIndex(),
		byHash:   make(map[string][]uint32),
	}
}

// OnStore registers fn to receive a copy of every stored record. fn runs on
// the storing goroutine after the cube lock is released.
func (c *Cube) OnStore(fn func(Record)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// Store appends content and returns its genome. Identical content produces
// the same genome and a new entry on every call.
func (c *Cube) Store(content map[string]any) (string, error) {
	hash, err := genome.Compute(content)
	if err != nil {
		return "", err
	}

	owned := genome.Clone(content)
	if owned == nil {
		owned = map[string]any{}
	}
	coords, overflow := project(owned)
	rec := Record{
		Hash:        hash,
		Content:     owned,
		Coordinates: coords,
		Timestamp:   time.Now().UTC(),
		Overflow:    overflow,
	}

	c.mu.Lock()
	pos := uint32(len(c.records))
	c.records = append(c.records, rec)
	c.postings.add(pos, &rec.Coordinates)
	c.byHash[hash] = append(c.byHash[hash], pos)
	if amount, ok := c.redistribution(owned); ok {
		c.pool += amount
	}
	observer := c.observer
	c.mu.Unlock()

	c.logger.Debug("record stored",
		zap.String("genome", hash),
		zap.Uint32("position", pos),
		zap.Int("dimensions", coords.Present()))

	if observer != nil {
		observer(rec.clone())
	}
	return hash, nil
}

// redistribution returns the pool contribution of content. Negative and
// non-numeric values contribute nothing so the pool never shrinks.
func (c *Cube) redistribution(content map[string]any) (float64, bool) {
	v, ok := content[c.cfg.PoolField]
	if !ok {
		return 0, false
	}
	n, ok := toNumber(v)
	if !ok || n <= 0 {
		return 0, false
	}
	amount := n * c.cfg.MandateFraction
	return amount, amount > 0
}

// Lookup returns the first record stored under hash.
func (c *Cube) Lookup(hash string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	positions := c.byHash[hash]
	if len(positions) == 0 {
		return Record{}, false
	}
	return c.records[positions[0]].clone(), true
}

// Occurrences returns how many entries share hash.
func (c *Cube) Occurrences(hash string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byHash[hash])
}

// Len returns the number of stored records.
func (c *Cube) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Pool returns the accumulated redistribution pool.
func (c *Cube) Pool() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}
