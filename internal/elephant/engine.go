// Package elephant implements the six-phase memory lifecycle.
//
// Ingested content becomes a Memory at INTAKE. Each advance moves memories
// one phase forward, never backward and never skipping a phase. Memories are
// kept forever; periodic generation snapshots summarise the whole set.
package elephant

import (
	"sync"
	"time"

	"github.com/nidhogg/vault-nexus/internal/genome"
	"go.uber.org/zap"
)

const (
	// MaxAssociations caps the associations computed at MEMORY_ENCODE.
	MaxAssociations = 5
	// SnapshotThreshold is the number of GENERATIONAL_PASS promotions in a
	// single advance above which a generation snapshot is taken.
	SnapshotThreshold = 10
	// DefaultRecallLimit applies when a recall names no limit.
	DefaultRecallLimit = 100
	// TopTagCount bounds the tags reported in stats and snapshots.
	TopTagCount = 10
)

// RecordSink receives enriched copies of newly ingested memories.
// *hypercube.Cube satisfies it.
type RecordSink interface {
	Store(content map[string]any) (string, error)
}

// Counters are the engine's running totals.
type Counters struct {
	TotalMemories    int `json:"total_memories"`
	TotalEchoes      int `json:"total_echoes"`
	TotalGenerations int `json:"total_generations"`
	HerdValidations  int `json:"herd_validations"`
	PhaseTransitions int `json:"phase_transitions"`
}

// Engine owns the memory set, its page buckets, the tag index and the
// generation archive behind one RWMutex.
type Engine struct {
	logger *zap.Logger

	mu                sync.RWMutex
	pages             [TotalPages + 1][]*Memory
	byGenome          map[string]*Memory
	tagIndex          map[string][]string
	tagOrder          []string
	generations       []GenerationSnapshot
	currentGeneration int
	counters          Counters
	loopCount         int
	lastCycle         time.Time
	sink              RecordSink
}

// NewEngine creates an empty engine. sink may be nil.
func NewEngine(sink RecordSink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:   logger,
		byGenome: make(map[string]*Memory),
		tagIndex: make(map[string][]string),
		sink:     sink,
	}
}

// SetSink replaces the record sink. nil disables forwarding.
func (e *Engine) SetSink(sink RecordSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// Ingest remembers content and returns its genome. Content already
// remembered only counts an echo. New memories are forwarded to the record
// sink after the engine lock is released.
func (e *Engine) Ingest(content map[string]any, tags []string) (string, error) {
	hash, err := genome.Compute(content)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	if m, ok := e.byGenome[hash]; ok {
		m.EchoCount++
		e.counters.TotalEchoes++
		echoes := m.EchoCount
		e.mu.Unlock()
		e.logger.Debug("memory echoed", zap.String("genome", hash), zap.Int("echo_count", echoes))
		return hash, nil
	}
	m := e.createLocked(hash, content, tags, time.Now().UTC())
	e.placeLocked(m)
	forward := enrich(m)
	sink := e.sink
	e.mu.Unlock()

	e.logger.Debug("memory ingested",
		zap.String("genome", hash),
		zap.Int("tags", len(m.Tags)),
		zap.Int("generation", m.Generation))
	e.forward(sink, hash, forward)
	return hash, nil
}

// Memory returns a copy of the memory stored under hash.
func (e *Engine) Memory(hash string) (Memory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.byGenome[hash]
	if !ok {
		return Memory{}, ErrMemoryNotFound
	}
	return m.clone(), nil
}

// Len returns the number of memories.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byGenome)
}

func (e *Engine) createLocked(hash string, content map[string]any, tags []string, at time.Time) *Memory {
	owned := genome.Clone(content)
	if owned == nil {
		owned = map[string]any{}
	}
	m := &Memory{
		Genome:       hash,
		Content:      owned,
		Timestamp:    at,
		Strength:     1.0,
		Phase:        Intake,
		Page:         Intake.FirstPage(),
		Generation:   e.currentGeneration,
		Tags:         normalizeTags(tags),
		Associations: []string{},
	}
	e.byGenome[hash] = m
	for _, t := range m.Tags {
		if _, seen := e.tagIndex[t]; !seen {
			e.tagOrder = append(e.tagOrder, t)
		}
		e.tagIndex[t] = append(e.tagIndex[t], hash)
	}
	e.counters.TotalMemories++
	return m
}

func (e *Engine) placeLocked(m *Memory) {
	e.pages[m.Page] = append(e.pages[m.Page], m)
}

func enrich(m *Memory) map[string]any {
	out := genome.Clone(m.Content)
	if out == nil {
		out = map[string]any{}
	}
	out["genome"] = m.Genome
	out["elephant_phase"] = string(m.Phase)
	out["elephant_page"] = m.Page
	out["elephant_generation"] = m.Generation
	out["elephant_strength"] = m.Strength
	out["timestamp"] = m.Timestamp.Format(time.RFC3339Nano)
	return out
}

func (e *Engine) forward(sink RecordSink, hash string, content map[string]any) {
	if sink == nil {
		e.logger.Debug("forwarding skipped", zap.String("genome", hash), zap.Error(ErrNoRecordSink))
		return
	}
	if _, err := sink.Store(content); err != nil {
		e.logger.Warn("failed to forward memory", zap.String("genome", hash), zap.Error(err))
	}
}
