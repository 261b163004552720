package main

import (
	"context"
	"fmt"

	"github.com/nidhogg/vault-nexus/internal/elephant"
	"github.com/nidhogg/vault-nexus/internal/gateway"
	"github.com/nidhogg/vault-nexus/internal/world"
	"go.uber.org/zap"
)

type cycleArchive interface {
	RecordCycle(ctx context.Context, rep elephant.CycleReport) error
	SaveGeneration(ctx context.Context, snap elephant.GenerationSnapshot) error
}

type linkGraph interface {
	UpsertLinks(ctx context.Context, links []elephant.MemoryLinks) error
}

// relay turns breath, cycle and export notifications into gateway events
// and persists cycle results to whichever backends are up.
type relay struct {
	broadcaster *gateway.Broadcaster
	cycles      cycleArchive
	graph       linkGraph
	logger      *zap.Logger
}

func (r *relay) onBreath(ctx context.Context, evt world.BreathEvent) {
	out := &gateway.Event{
		Type:      gateway.EventBreath,
		Phase:     string(evt.Mark),
		Cycle:     evt.Cycle,
		Timestamp: evt.At,
	}
	switch evt.Mark {
	case world.FlowComplete:
		if evt.Report == nil {
			return
		}
		out.Type = gateway.EventCycleComplete
		out.Summary = cycleSummary(*evt.Report)
		out.Data = evt.Report
		r.onCycle(ctx, *evt.Report)
	case world.Reset:
		out.Data = map[string]int{"next_cycle": evt.Cycle + 1}
	}
	r.send(ctx, out)
}

// onCycle persists a finished lifecycle cycle and announces new generations.
func (r *relay) onCycle(ctx context.Context, rep elephant.CycleReport) {
	if r.cycles != nil {
		if err := r.cycles.RecordCycle(ctx, rep); err != nil {
			r.logger.Warn("cycle not archived", zap.Int("loop", rep.Loop), zap.Error(err))
		}
	}
	r.mirrorLinks(ctx, rep.Links)
	if rep.Snapshot != nil {
		r.announceGeneration(ctx, rep.Loop, rep.Snapshot)
	}
}

// onAdvance handles a single manual phase advance. It is not a cycle, so
// only its snapshot and links are persisted.
func (r *relay) onAdvance(ctx context.Context, rep elephant.AdvanceReport) {
	r.mirrorLinks(ctx, rep.Links)
	snap := rep.Snapshot
	if snap == nil {
		return
	}
	if r.cycles != nil {
		if err := r.cycles.SaveGeneration(ctx, *snap); err != nil {
			r.logger.Warn("generation not archived", zap.Int("generation", snap.Generation), zap.Error(err))
		}
	}
	r.announceGeneration(ctx, 0, snap)
}

func (r *relay) mirrorLinks(ctx context.Context, links []elephant.MemoryLinks) {
	if r.graph == nil || len(links) == 0 {
		return
	}
	if err := r.graph.UpsertLinks(ctx, links); err != nil {
		r.logger.Warn("associations not mirrored", zap.Int("memories", len(links)), zap.Error(err))
	}
}

func (r *relay) announceGeneration(ctx context.Context, loop int, snap *elephant.GenerationSnapshot) {
	r.send(ctx, &gateway.Event{
		Type:    gateway.EventGeneration,
		Cycle:   loop,
		Title:   fmt.Sprintf("generation %d", snap.Generation),
		Summary: fmt.Sprintf("%d memories, avg strength %.2f", snap.TotalMemories, snap.AvgStrength),
		Data:    snap,
	})
}

func (r *relay) onExport(ctx context.Context, results []world.ExportResult) {
	failed := 0
	for _, res := range results {
		if res.Err != "" {
			failed++
		}
	}
	r.send(ctx, &gateway.Event{
		Type:    gateway.EventExport,
		Title:   "export written",
		Summary: fmt.Sprintf("%d files, %d failed", len(results)-failed, failed),
		Data:    results,
	})
}

func (r *relay) send(ctx context.Context, evt *gateway.Event) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.Send(ctx, evt); err != nil {
		r.logger.Debug("broadcast incomplete", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

func cycleSummary(rep elephant.CycleReport) string {
	s := rep.Stats
	return fmt.Sprintf("trunk %d, herd %d, encode %d, pass %d, echo %d",
		s.TrunkSorted, s.HerdValidated, s.Encoded, s.GenerationalPassed, s.EchoAmplified)
}
