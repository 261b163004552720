package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nidhogg/vault-nexus/internal/hypercube"
	"go.uber.org/zap"
)

// DefaultCollection holds record projections.
const DefaultCollection = "hypercube_records"

const (
	defaultBuffer = 1024
	batchSize     = 64
	flushEvery    = time.Second
)

// ErrUnavailable is returned by Similar once the mirror has failed to
// prepare its collection.
var ErrUnavailable = errors.New("vector index unavailable")

// Index is the subset of the Qdrant client the mirror needs.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, q SearchQuery) ([]SearchResult, error)
}

// Match is a similar record.
type Match struct {
	Genome string  `json:"genome"`
	Score  float32 `json:"score"`
}

// Mirror copies stored records into the vector index in batches. Records
// are queued without blocking the store; a full queue drops them.
type Mirror struct {
	index      Index
	collection string
	queue      chan Point
	dropped    atomic.Int64
	mirrored   atomic.Int64
	failed     atomic.Bool
	logger     *zap.Logger
}

// NewMirror creates a mirror with room for buffer pending records.
func NewMirror(index Index, collection string, buffer int, logger *zap.Logger) *Mirror {
	if collection == "" {
		collection = DefaultCollection
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Mirror{
		index:      index,
		collection: collection,
		queue:      make(chan Point, buffer),
		logger:     logger,
	}
}

// Enqueue schedules rec for mirroring. It never blocks, and does nothing
// once the mirror has failed.
func (m *Mirror) Enqueue(rec hypercube.Record) {
	if m.failed.Load() {
		return
	}
	p := Point{
		ID:      PointID(rec.Hash),
		Vector:  Project(&rec.Coordinates),
		Payload: map[string]any{
			GenomeField: rec.Hash,
			"present":   rec.Coordinates.Present(),
			"stored_at": rec.Timestamp.UnixMilli(),
		},
	}
	select {
	case m.queue <- p:
	default:
		if m.dropped.Add(1)%100 == 1 {
			m.logger.Warn("vector mirror queue full, dropping records",
				zap.Int64("dropped", m.dropped.Load()))
		}
	}
}

// Dropped returns how many records were not mirrored because the queue was full.
func (m *Mirror) Dropped() int64 { return m.dropped.Load() }

// Mirrored returns how many points were upserted.
func (m *Mirror) Mirrored() int64 { return m.mirrored.Load() }

// Failed reports whether Run gave up on the collection.
func (m *Mirror) Failed() bool { return m.failed.Load() }

// Run ensures the collection exists and upserts queued points until ctx is
// done, flushing what is pending before it returns. If the collection cannot
// be prepared the mirror is disabled: Enqueue stops queueing and Similar
// returns ErrUnavailable.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.index.EnsureCollection(ctx, m.collection, hypercube.DimensionCount); err != nil {
		m.failed.Store(true)
	drop:
		for {
			select {
			case <-m.queue:
			default:
				break drop
			}
		}
		return fmt.Errorf("prepare collection %s: %w", m.collection, err)
	}
	m.logger.Info("vector mirror started", zap.String("collection", m.collection))

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	pending := make([]Point, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := m.index.Upsert(ctx, m.collection, pending); err != nil {
			m.logger.Warn("vector mirror upsert failed",
				zap.Int("points", len(pending)), zap.Error(err))
		} else {
			m.mirrored.Add(int64(len(pending)))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case p := <-m.queue:
					pending = append(pending, p)
				default:
					break drain
				}
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(drainCtx)
			cancel()
			return nil
		case p := <-m.queue:
			pending = append(pending, p)
			if len(pending) >= batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Similar returns up to k records closest to coords, leaving out exclude.
func (m *Mirror) Similar(ctx context.Context, coords *hypercube.Coordinates, exclude string, k int) ([]Match, error) {
	if m.failed.Load() {
		return nil, ErrUnavailable
	}
	if k <= 0 {
		k = 10
	}
	results, err := m.index.Search(ctx, m.collection, SearchQuery{
		Vector:        Project(coords),
		Limit:         uint64(k),
		ExcludeGenome: exclude,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, k)
	for _, r := range results {
		g := r.Genome()
		if g == "" || g == exclude {
			continue
		}
		out = append(out, Match{Genome: g, Score: r.Score})
		if len(out) == k {
			break
		}
	}
	return out, nil
}
