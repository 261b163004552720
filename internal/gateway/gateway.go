package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages all platform adapters.
type Gateway struct {
	adapters map[string]GatewayAdapter
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]GatewayAdapter),
		logger:   logger,
	}
}

// Register adds an adapter, replacing any adapter for the same platform.
func (g *Gateway) Register(adapter GatewayAdapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// ConnectAll starts every registered adapter. Adapters that fail are logged
// and skipped, and the returned error names them.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var failed []string
	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Warn("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			failed = append(failed, platform)
			continue
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("connect failed for %v", failed)
	}
	return nil
}

// Broadcast sends evt to every matching adapter and returns the platforms
// that accepted it.
func (g *Gateway) Broadcast(ctx context.Context, evt *Event) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := g.adapters
	if len(evt.Platforms) > 0 {
		targets = make(map[string]GatewayAdapter)
		for _, p := range evt.Platforms {
			if a, ok := g.adapters[p]; ok {
				targets[p] = a
			}
		}
	}

	var (
		sent []string
		errs int
	)
	for platform, adapter := range targets {
		if f, ok := adapter.(EventFilter); ok && !f.Accepts(evt) {
			continue
		}
		if err := adapter.Broadcast(ctx, evt); err != nil {
			g.logger.Warn("broadcast failed",
				zap.String("platform", platform),
				zap.String("type", string(evt.Type)),
				zap.Error(err))
			errs++
			continue
		}
		sent = append(sent, platform)
	}
	sort.Strings(sent)
	if errs > 0 {
		return sent, fmt.Errorf("broadcast failed on %d platform(s)", errs)
	}
	return sent, nil
}

// Close shuts down all adapters and joins their close errors.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Warn("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", platform, err))
		}
	}
	return errors.Join(errs...)
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Statuses returns the status of every adapter, sorted by platform.
func (g *Gateway) Statuses() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]AdapterStatus, 0, len(g.adapters))
	for _, a := range g.adapters {
		out = append(out, a.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
