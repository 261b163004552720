package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHistorySize bounds the broadcast history.
const DefaultHistorySize = 256

// BroadcastRecord tracks a sent event for history.
type BroadcastRecord struct {
	Event   *Event    `json:"event"`
	SentAt  time.Time `json:"sent_at"`
	Targets []string  `json:"targets"`
}

// Broadcaster stamps events, routes them through the Gateway and keeps a
// bounded history of what went out.
type Broadcaster struct {
	gateway *Gateway
	limit   int
	mu      sync.Mutex
	history []BroadcastRecord
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster backed by the given gateway.
func NewBroadcaster(gw *Gateway, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		gateway: gw,
		limit:   DefaultHistorySize,
		logger:  logger,
	}
}

// Send stamps and broadcasts evt.
func (b *Broadcaster) Send(ctx context.Context, evt *Event) error {
	if evt.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.logger.Debug("sending nexus event",
		zap.String("type", string(evt.Type)),
		zap.String("phase", evt.Phase),
		zap.Int("cycle", evt.Cycle))

	targets, err := b.gateway.Broadcast(ctx, evt)

	b.mu.Lock()
	b.history = append(b.history, BroadcastRecord{
		Event:   evt,
		SentAt:  time.Now(),
		Targets: targets,
	})
	if over := len(b.history) - b.limit; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
	b.mu.Unlock()
	return err
}

// History returns up to limit of the most recent records, oldest first.
func (b *Broadcaster) History(limit int) []BroadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	start := len(b.history) - limit
	return append([]BroadcastRecord{}, b.history[start:]...)
}
