//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/vault-nexus/internal/elephant"
	"github.com/nidhogg/vault-nexus/internal/events"
	"github.com/nidhogg/vault-nexus/internal/gateway"
	"github.com/nidhogg/vault-nexus/internal/hypercube"
	"github.com/nidhogg/vault-nexus/internal/memory"
	pgstore "github.com/nidhogg/vault-nexus/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// cycledEngine returns an engine that has archived generation 0 and the
// report of the cycle that archived it.
func cycledEngine(t *testing.T) (*elephant.Engine, elephant.CycleReport) {
	t.Helper()
	engine := elephant.NewEngine(hypercube.New(hypercube.DefaultConfig(), zap.NewNop()), zap.NewNop())
	for i := range 12 {
		tag := "even"
		if i%2 == 1 {
			tag = "odd"
		}
		_, err := engine.Ingest(map[string]any{"seq": i, "brand": "NVQLink"}, []string{tag, "all"})
		require.NoError(t, err)
	}
	engine.RunCycle()
	rep := engine.RunCycle()
	require.NotNil(t, rep.Snapshot)
	return engine, rep
}

func TestPostgresCycleArchive(t *testing.T) {
	dsn := container(t, startPostgres)
	ctx := context.Background()

	s, err := pgstore.New(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	applied, err := s.Migrate(ctx, "../../migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_generations.up.sql", "002_cycles.up.sql"}, applied)
	// a second run finds nothing new
	applied, err = s.Migrate(ctx, "../../migrations")
	require.NoError(t, err)
	assert.Empty(t, applied)

	_, rep := cycledEngine(t)
	require.NoError(t, s.RecordCycle(ctx, rep))
	// re-archiving the same generation keeps the first copy
	require.NoError(t, s.SaveGeneration(ctx, *rep.Snapshot))

	gens, err := s.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, 0, gens[0].Generation)
	assert.Equal(t, 12, gens[0].TotalMemories)
	assert.Equal(t, rep.Snapshot.TopTags, gens[0].TopTags)
	assert.Equal(t, 12, gens[0].PhaseCounts[elephant.GenerationalPass])

	cycles, err := s.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, rep.Loop, cycles[0].Loop)
	assert.Equal(t, rep.Stats, cycles[0].Stats)
	require.NotNil(t, cycles[0].Generation)
	assert.Equal(t, 0, *cycles[0].Generation)
}

func TestNeo4jAssociationGraph(t *testing.T) {
	uri := container(t, startNeo4j)
	ctx := context.Background()

	g, err := memory.NewStore(uri, "", "", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close(ctx) })
	require.NoError(t, g.Ping(ctx))
	require.NoError(t, g.EnsureSchema(ctx))

	_, rep := cycledEngine(t)
	require.Len(t, rep.Links, 12)
	require.NoError(t, g.UpsertLinks(ctx, rep.Links))
	// upserts are idempotent
	require.NoError(t, g.UpsertLinks(ctx, rep.Links))

	first := rep.Links[0]
	nbrs, err := g.Neighbors(ctx, first.Genome)
	require.NoError(t, err)
	require.Len(t, nbrs, len(first.Associations))
	for i, n := range nbrs {
		assert.Equal(t, first.Associations[i], n.Genome)
		assert.Equal(t, i, n.Rank)
		assert.Contains(t, n.Tags, "all")
	}

	none, err := g.Neighbors(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisEventStream(t *testing.T) {
	url := container(t, startRedis)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := events.NewStream(url, "nexus:test", 100, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Connect(ctx))
	assert.True(t, s.Status().Connected)

	gw := gateway.NewGateway(zap.NewNop())
	gw.Register(s)
	b := gateway.NewBroadcaster(gw, zap.NewNop())

	for _, mark := range []string{"PULSE", "GLOW", "TRADE"} {
		require.NoError(t, b.Send(ctx, &gateway.Event{Type: gateway.EventBreath, Phase: mark, Cycle: 1}))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "TRADE", recent[0].Event.Phase)
	assert.Equal(t, "GLOW", recent[1].Event.Phase)

	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	sub := s.Subscribe(subCtx)

	// entries published before the first blocking read are not replayed,
	// so publish until the subscriber sees one
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case e := <-sub:
			assert.Equal(t, gateway.EventGeneration, e.Event.Type)
			assert.NotEmpty(t, e.ID)
			return
		case <-ticker.C:
			_, err := s.Publish(ctx, &gateway.Event{Type: gateway.EventGeneration, Title: "generation 0"})
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("subscriber received nothing")
		}
	}
}
