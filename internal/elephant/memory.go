package elephant

import (
	"strings"
	"time"

	"github.com/nidhogg/vault-nexus/internal/genome"
)

// Memory is one remembered item and its lifecycle state. Content never
// changes after ingest and memories are never removed.
type Memory struct {
	Genome          string         `json:"genome"`
	Content         map[string]any `json:"content"`
	Timestamp       time.Time      `json:"timestamp"`
	Strength        float64        `json:"strength"`
	Phase           Phase          `json:"phase"`
	Page            int            `json:"page"`
	Generation      int            `json:"generation"`
	HerdValidations int            `json:"herd_validations"`
	EchoCount       int            `json:"echo_count"`
	Tags            []string       `json:"tags"`
	Associations    []string       `json:"associations"`
}

func (m *Memory) clone() Memory {
	out := *m
	out.Content = genome.Clone(m.Content)
	out.Tags = append([]string{}, m.Tags...)
	out.Associations = append([]string{}, m.Associations...)
	return out
}

func (m *Memory) hasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range m.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// normalizeTags trims, drops empty entries and removes duplicates while
// keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
