package hypercube

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nidhogg/vault-nexus/internal/genome"
	"github.com/nidhogg/vault-nexus/internal/transfer"
	"go.uber.org/zap"
)

// FormatVersion is written into every export.
const FormatVersion = "1.0.0"

// ExportMetadata describes an export.
type ExportMetadata struct {
	ExportedAt time.Time `json:"exported_at"`
	Version    string    `json:"version"`
	Dimensions int       `json:"dimensions"`
}

// Snapshot is the transfer format of a cube.
type Snapshot struct {
	Metadata ExportMetadata `json:"metadata"`
	Stats    Stats          `json:"stats"`
	Data     []Record       `json:"data"`
}

// Export writes every record and the current stats as JSON.
func (c *Cube) Export(w io.Writer) error {
	c.mu.RLock()
	data := make([]Record, len(c.records))
	for i := range c.records {
		data[i] = c.records[i].clone()
	}
	c.mu.RUnlock()

	snap := Snapshot{
		Metadata: ExportMetadata{
			ExportedAt: time.Now().UTC(),
			Version:    FormatVersion,
			Dimensions: DimensionCount,
		},
		Stats: c.Stats(),
		Data:  data,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("encode hypercube export: %w", err)
	}
	return nil
}

// Import replays every exported record through Store. Genomes are
// recomputed, and records are appended to whatever the cube already holds.
// If any record cannot be serialized nothing is stored.
func (c *Cube) Import(r io.Reader) (int, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return 0, fmt.Errorf("decode hypercube export: %w", err)
	}
	for i, rec := range snap.Data {
		if _, err := genome.Compute(rec.Content); err != nil {
			return 0, fmt.Errorf("import record %d: %w", i, err)
		}
	}
	for i, rec := range snap.Data {
		if _, err := c.Store(rec.Content); err != nil {
			return i, fmt.Errorf("import record %d: %w", i, err)
		}
	}
	c.logger.Info("hypercube import complete",
		zap.Int("records", len(snap.Data)),
		zap.String("version", snap.Metadata.Version))
	return len(snap.Data), nil
}

// ExportFile writes an export to path, zstd compressed for ".zst" paths.
func (c *Cube) ExportFile(path string) error {
	w, err := transfer.Create(path)
	if err != nil {
		return err
	}
	if err := c.Export(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ImportFile replays the export at path.
func (c *Cube) ImportFile(path string) (int, error) {
	r, err := transfer.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return c.Import(r)
}
