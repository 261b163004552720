package elephant

import (
	"time"

	"go.uber.org/zap"
)

// MemoryLinks reports the associations computed for one memory at encode time.
type MemoryLinks struct {
	Genome       string   `json:"genome"`
	Tags         []string `json:"tags"`
	Associations []string `json:"associations"`
}

// CycleStats counts promotions per stage of one cycle.
type CycleStats struct {
	TrunkSorted        int `json:"trunk_sorted"`
	HerdValidated      int `json:"herd_validated"`
	Encoded            int `json:"encoded"`
	GenerationalPassed int `json:"generational_passed"`
	EchoAmplified      int `json:"echo_amplified"`
}

// Total is the number of promotions in the cycle.
func (s CycleStats) Total() int {
	return s.TrunkSorted + s.HerdValidated + s.Encoded + s.GenerationalPassed + s.EchoAmplified
}

// CycleReport is the outcome of RunCycle.
type CycleReport struct {
	Loop      int                 `json:"loop"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration_ns"`
	Stats     CycleStats          `json:"stats"`
	Snapshot  *GenerationSnapshot `json:"snapshot,omitempty"`
	Links     []MemoryLinks       `json:"links,omitempty"`
}

// advanceResult collects side outputs of a single advance.
type advanceResult struct {
	snapshot *GenerationSnapshot
	links    []MemoryLinks
}

// AdvanceReport is the outcome of a single Advance.
type AdvanceReport struct {
	Target   Phase               `json:"phase"`
	Promoted int                 `json:"promoted"`
	Snapshot *GenerationSnapshot `json:"snapshot,omitempty"`
	Links    []MemoryLinks       `json:"links,omitempty"`
}

// AdvancePhase promotes every eligible memory from the phase before target
// into target and returns how many moved. Each memory moves at most one
// phase per call. Targeting INTAKE or an unknown phase moves nothing.
func (e *Engine) AdvancePhase(target Phase) int {
	return e.Advance(target).Promoted
}

// Advance is AdvancePhase reporting the snapshot taken by a
// GENERATIONAL_PASS advance and the associations built by a MEMORY_ENCODE
// advance.
func (e *Engine) Advance(target Phase) AdvanceReport {
	e.mu.Lock()
	n, res := e.advanceLocked(target)
	e.mu.Unlock()

	if res.snapshot != nil {
		e.logger.Info("generation snapshot taken",
			zap.Int("generation", res.snapshot.Generation),
			zap.Int("memories", res.snapshot.TotalMemories))
	}
	return AdvanceReport{Target: target, Promoted: n, Snapshot: res.snapshot, Links: res.links}
}

// RunCycle runs the five advances in lifecycle order under one lock. Ingests
// arriving meanwhile wait and are picked up by the next cycle.
func (e *Engine) RunCycle() CycleReport {
	start := time.Now()

	e.mu.Lock()
	var rep CycleReport
	rep.StartedAt = start.UTC()
	for _, target := range Phases[1:] {
		n, res := e.advanceLocked(target)
		switch target {
		case TrunkSort:
			rep.Stats.TrunkSorted = n
		case HerdConsensus:
			rep.Stats.HerdValidated = n
		case MemoryEncode:
			rep.Stats.Encoded = n
			rep.Links = res.links
		case GenerationalPass:
			rep.Stats.GenerationalPassed = n
			rep.Snapshot = res.snapshot
		case EchoAmplify:
			rep.Stats.EchoAmplified = n
		}
	}
	e.loopCount++
	rep.Loop = e.loopCount
	e.lastCycle = rep.StartedAt
	e.mu.Unlock()

	rep.Duration = time.Since(start)
	e.logger.Info("elephant cycle complete",
		zap.Int("loop", rep.Loop),
		zap.Int("trunk_sorted", rep.Stats.TrunkSorted),
		zap.Int("herd_validated", rep.Stats.HerdValidated),
		zap.Int("encoded", rep.Stats.Encoded),
		zap.Int("generational_passed", rep.Stats.GenerationalPassed),
		zap.Int("echo_amplified", rep.Stats.EchoAmplified),
		zap.Duration("duration", rep.Duration))
	if rep.Snapshot != nil {
		e.logger.Info("generation snapshot taken",
			zap.Int("generation", rep.Snapshot.Generation),
			zap.Int("memories", rep.Snapshot.TotalMemories))
	}
	return rep
}

func (e *Engine) advanceLocked(target Phase) (int, advanceResult) {
	var res advanceResult
	from, ok := target.Previous()
	if !ok {
		return 0, res
	}

	var eligible func(m *Memory) bool
	switch target {
	case TrunkSort:
		eligible = func(m *Memory) bool {
			return m.Strength >= 0.5 || m.EchoCount > 0
		}
	case HerdConsensus:
		eligible = func(m *Memory) bool {
			m.HerdValidations++
			if m.HerdValidations < 2 {
				return false
			}
			m.Strength = min(1.0, m.Strength+0.1)
			e.counters.HerdValidations++
			return true
		}
	case MemoryEncode:
		eligible = func(m *Memory) bool {
			m.Associations = e.associationsLocked(m)
			m.Strength = 1.0
			res.links = append(res.links, MemoryLinks{
				Genome:       m.Genome,
				Tags:         append([]string{}, m.Tags...),
				Associations: append([]string{}, m.Associations...),
			})
			return true
		}
	case GenerationalPass:
		eligible = func(*Memory) bool { return true }
	case EchoAmplify:
		eligible = func(m *Memory) bool {
			m.EchoCount++
			e.counters.TotalEchoes++
			return true
		}
	}

	n := e.promoteLocked(from, target, eligible)
	if target == GenerationalPass && n > SnapshotThreshold {
		snap := e.snapshotLocked()
		res.snapshot = &snap
	}
	return n, res
}

// promoteLocked moves memories of phase from that satisfy eligible to the
// first page of to. Scan order is page ascending, then insertion order.
func (e *Engine) promoteLocked(from, to Phase, eligible func(*Memory) bool) int {
	first, last := from.Pages()
	dest := to.FirstPage()
	var moved []*Memory
	for page := first; page <= last; page++ {
		bucket := e.pages[page]
		kept := bucket[:0]
		for _, m := range bucket {
			if m.Phase == from && eligible(m) {
				m.Phase = to
				m.Page = dest
				moved = append(moved, m)
				continue
			}
			kept = append(kept, m)
		}
		clear(bucket[len(kept):])
		e.pages[page] = kept
	}
	e.pages[dest] = append(e.pages[dest], moved...)
	e.counters.PhaseTransitions += len(moved)
	return len(moved)
}

// associationsLocked returns up to MaxAssociations other genomes sharing a
// tag with m, walking m's tags in order and each tag's genomes in
// registration order.
func (e *Engine) associationsLocked(m *Memory) []string {
	out := make([]string, 0, MaxAssociations)
	seen := map[string]struct{}{m.Genome: {}}
	for _, t := range m.Tags {
		for _, g := range e.tagIndex[t] {
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
			if len(out) == MaxAssociations {
				return out
			}
		}
	}
	return out
}
