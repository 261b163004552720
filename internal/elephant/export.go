package elephant

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/nidhogg/vault-nexus/internal/genome"
	"github.com/nidhogg/vault-nexus/internal/transfer"
	"go.uber.org/zap"
)

// ArchiveVersion is written into every export.
const ArchiveVersion = "1.0.0"

// ArchiveMetadata describes an export.
type ArchiveMetadata struct {
	ExportedAt time.Time `json:"exported_at"`
	Version    string    `json:"version"`
	Pages      int       `json:"pages"`
}

// Archive is the transfer format of an engine.
type Archive struct {
	Metadata    ArchiveMetadata      `json:"metadata"`
	Stats       Stats                `json:"stats"`
	Generations []GenerationSnapshot `json:"generations"`
	Memories    []Memory             `json:"memories"`
}

// ImportResult counts what an import changed.
type ImportResult struct {
	Created     int `json:"created"`
	Echoed      int `json:"echoed"`
	Generations int `json:"generations"`
}

// Export writes every memory, page by page, and the generation archive.
func (e *Engine) Export(w io.Writer) error {
	stats := e.Stats()

	e.mu.RLock()
	memories := make([]Memory, 0, len(e.byGenome))
	for page := 1; page <= TotalPages; page++ {
		for _, m := range e.pages[page] {
			memories = append(memories, m.clone())
		}
	}
	gens := make([]GenerationSnapshot, len(e.generations))
	for i, s := range e.generations {
		gens[i] = s.clone()
	}
	e.mu.RUnlock()

	arc := Archive{
		Metadata: ArchiveMetadata{
			ExportedAt: time.Now().UTC(),
			Version:    ArchiveVersion,
			Pages:      TotalPages,
		},
		Stats:       stats,
		Generations: gens,
		Memories:    memories,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&arc); err != nil {
		return fmt.Errorf("encode elephant export: %w", err)
	}
	return nil
}

// Import replays exported memories. Genomes are recomputed from content;
// content already remembered counts an echo, new content is created with
// its exported lifecycle state once that state is validated. Snapshots for
// unknown generations join the archive, which stays ordered by generation.
// Nothing changes if any memory fails to
// serialize. Imported memories are not forwarded to the record sink.
func (e *Engine) Import(r io.Reader) (ImportResult, error) {
	var arc Archive
	if err := json.NewDecoder(r).Decode(&arc); err != nil {
		return ImportResult{}, fmt.Errorf("decode elephant export: %w", err)
	}
	hashes := make([]string, len(arc.Memories))
	for i, m := range arc.Memories {
		h, err := genome.Compute(m.Content)
		if err != nil {
			return ImportResult{}, fmt.Errorf("import memory %d: %w", i, err)
		}
		hashes[i] = h
	}

	var res ImportResult
	e.mu.Lock()
	for i, in := range arc.Memories {
		hash := hashes[i]
		if m, ok := e.byGenome[hash]; ok {
			m.EchoCount++
			e.counters.TotalEchoes++
			res.Echoed++
			continue
		}
		at := in.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		m := e.createLocked(hash, in.Content, in.Tags, at)
		restore(m, in)
		e.placeLocked(m)
		res.Created++
	}

	known := make(map[int]struct{}, len(e.generations))
	for _, s := range e.generations {
		known[s.Generation] = struct{}{}
	}
	for _, s := range arc.Generations {
		if _, ok := known[s.Generation]; ok || s.Generation < 0 {
			continue
		}
		known[s.Generation] = struct{}{}
		e.generations = append(e.generations, s.clone())
		if s.Generation >= e.currentGeneration {
			e.currentGeneration = s.Generation + 1
		}
		res.Generations++
	}
	if res.Generations > 0 {
		slices.SortStableFunc(e.generations, func(a, b GenerationSnapshot) int {
			return cmp.Compare(a.Generation, b.Generation)
		})
	}
	e.counters.TotalGenerations = len(e.generations)
	e.mu.Unlock()

	e.logger.Info("elephant import complete",
		zap.Int("created", res.Created),
		zap.Int("echoed", res.Echoed),
		zap.Int("generations", res.Generations),
		zap.String("version", arc.Metadata.Version))
	return res, nil
}

// restore copies validated lifecycle state from an exported memory. Invalid
// phases fall back to INTAKE and out-of-range pages to the phase's first page.
func restore(m *Memory, in Memory) {
	if in.Phase.Valid() {
		m.Phase = in.Phase
	}
	m.Page = m.Phase.FirstPage()
	if m.Phase.OwnsPage(in.Page) {
		m.Page = in.Page
	}
	if !math.IsNaN(in.Strength) && in.Strength > 0 {
		m.Strength = math.Min(in.Strength, 1.0)
	}
	m.Generation = max(in.Generation, 0)
	m.HerdValidations = max(in.HerdValidations, 0)
	m.EchoCount = max(in.EchoCount, 0)
	assoc := make([]string, 0, MaxAssociations)
	for _, g := range in.Associations {
		if g == m.Genome || len(g) != genome.Size || len(assoc) == MaxAssociations {
			continue
		}
		assoc = append(assoc, g)
	}
	m.Associations = assoc
}

// ExportFile writes an export to path, zstd compressed for .zst paths.
func (e *Engine) ExportFile(path string) error {
	w, err := transfer.Create(path)
	if err != nil {
		return err
	}
	if err := e.Export(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ImportFile imports an export written by ExportFile.
func (e *Engine) ImportFile(path string) (ImportResult, error) {
	r, err := transfer.Open(path)
	if err != nil {
		return ImportResult{}, err
	}
	defer r.Close()
	return e.Import(r)
}
