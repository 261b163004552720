package elephant

import "sort"

// RecallQuery selects memories. A non-empty Genome is an exact lookup and
// ignores the other filters. Tags match when a memory carries any of them.
type RecallQuery struct {
	Genome string
	Tags   []string
	Phase  Phase
	Limit  int
}

// Recall returns matching memories ranked by strength then echo count, both
// descending. Equal ranks keep page order, then insertion order.
func (e *Engine) Recall(q RecallQuery) []Memory {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if q.Genome != "" {
		m, ok := e.byGenome[q.Genome]
		if !ok {
			return []Memory{}
		}
		return []Memory{m.clone()}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	tags := normalizeTags(q.Tags)

	var matched []*Memory
	for page := 1; page <= TotalPages; page++ {
		for _, m := range e.pages[page] {
			if q.Phase != "" && m.Phase != q.Phase {
				continue
			}
			if len(tags) > 0 && !m.hasAnyTag(tags) {
				continue
			}
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.EchoCount > b.EchoCount
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]Memory, len(matched))
	for i, m := range matched {
		out[i] = m.clone()
	}
	return out
}
