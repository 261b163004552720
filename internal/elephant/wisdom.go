package elephant

import (
	"sort"
	"time"
)

// TagCount is a tag and the number of memories carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// GenerationSnapshot summarises the memory set when a generation closes.
// Snapshots are never modified once archived.
type GenerationSnapshot struct {
	Generation    int           `json:"generation"`
	Timestamp     time.Time     `json:"timestamp"`
	TotalMemories int           `json:"total_memories"`
	AvgStrength   float64       `json:"avg_strength"`
	TopTags       []TagCount    `json:"top_tags"`
	PhaseCounts   map[Phase]int `json:"memory_count_by_phase"`
}

func (s GenerationSnapshot) clone() GenerationSnapshot {
	out := s
	out.TopTags = append([]TagCount{}, s.TopTags...)
	out.PhaseCounts = make(map[Phase]int, len(s.PhaseCounts))
	for p, n := range s.PhaseCounts {
		out.PhaseCounts[p] = n
	}
	return out
}

// Wisdom is the generation archive summary.
type Wisdom struct {
	TotalGenerations  int                  `json:"total_generations"`
	CurrentGeneration int                  `json:"current_generation"`
	Generations       []GenerationSnapshot `json:"generations"`
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Counters
	CurrentGeneration int           `json:"current_generation"`
	LoopCount         int           `json:"loop_count"`
	Pages             int           `json:"pages"`
	OccupiedPages     int           `json:"occupied_pages"`
	AvgStrength       float64       `json:"avg_strength"`
	PhaseCounts       map[Phase]int `json:"memory_count_by_phase"`
	TopTags           []TagCount    `json:"top_tags"`
	LastCycle         *time.Time    `json:"last_cycle,omitempty"`
}

// snapshotLocked archives a snapshot of the current generation and opens
// the next one.
func (e *Engine) snapshotLocked() GenerationSnapshot {
	snap := GenerationSnapshot{
		Generation:    e.currentGeneration,
		Timestamp:     time.Now().UTC(),
		TotalMemories: len(e.byGenome),
		AvgStrength:   e.avgStrengthLocked(),
		TopTags:       e.topTagsLocked(TopTagCount),
		PhaseCounts:   e.phaseCountsLocked(),
	}
	e.generations = append(e.generations, snap)
	e.currentGeneration++
	e.counters.TotalGenerations = len(e.generations)
	return snap.clone()
}

func (e *Engine) avgStrengthLocked() float64 {
	if len(e.byGenome) == 0 {
		return 0
	}
	var sum float64
	for _, m := range e.byGenome {
		sum += m.Strength
	}
	return sum / float64(len(e.byGenome))
}

func (e *Engine) phaseCountsLocked() map[Phase]int {
	counts := make(map[Phase]int, len(Phases))
	for _, p := range Phases {
		counts[p] = 0
	}
	for page := 1; page <= TotalPages; page++ {
		for _, m := range e.pages[page] {
			counts[m.Phase]++
		}
	}
	return counts
}

// topTagsLocked ranks tags by memory count. Ties keep registration order.
func (e *Engine) topTagsLocked(limit int) []TagCount {
	out := make([]TagCount, 0, len(e.tagOrder))
	for _, t := range e.tagOrder {
		out = append(out, TagCount{Tag: t, Count: len(e.tagIndex[t])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Generation returns the archived snapshot for generation n.
func (e *Engine) Generation(n int) (GenerationSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.generations {
		if s.Generation == n {
			return s.clone(), true
		}
	}
	return GenerationSnapshot{}, false
}

// Wisdom returns the whole generation archive.
func (e *Engine) Wisdom() Wisdom {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gens := make([]GenerationSnapshot, len(e.generations))
	for i, s := range e.generations {
		gens[i] = s.clone()
	}
	return Wisdom{
		TotalGenerations:  len(e.generations),
		CurrentGeneration: e.currentGeneration,
		Generations:       gens,
	}
}

// Stats returns totals, the phase histogram and the most used tags.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	occupied := 0
	for page := 1; page <= TotalPages; page++ {
		if len(e.pages[page]) > 0 {
			occupied++
		}
	}
	s := Stats{
		Counters:          e.counters,
		CurrentGeneration: e.currentGeneration,
		LoopCount:         e.loopCount,
		Pages:             TotalPages,
		OccupiedPages:     occupied,
		AvgStrength:       e.avgStrengthLocked(),
		PhaseCounts:       e.phaseCountsLocked(),
		TopTags:           e.topTagsLocked(TopTagCount),
	}
	if !e.lastCycle.IsZero() {
		last := e.lastCycle
		s.LastCycle = &last
	}
	return s
}
