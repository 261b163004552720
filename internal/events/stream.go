// Package events appends nexus events to a Redis stream so other services
// can follow breath marks, cycles and generations.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/vault-nexus/internal/gateway"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PlatformRedis names the stream adapter in the gateway.
const PlatformRedis = "redis"

// DefaultStreamKey is used when no key is configured.
const DefaultStreamKey = "nexus:events"

// Entry is one event read back from the stream.
type Entry struct {
	ID    string         `json:"id"`
	Event *gateway.Event `json:"event"`
}

// Stream publishes gateway events to a Redis stream.
type Stream struct {
	rdb    *redis.Client
	key    string
	maxLen int64

	mu          sync.RWMutex
	connectedAt time.Time
	lastError   string
	logger      *zap.Logger
}

// NewStream parses redisURL and returns a stream adapter. maxLen caps the
// stream length approximately; zero keeps every entry.
func NewStream(redisURL, key string, maxLen int64, logger *zap.Logger) (*Stream, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if key == "" {
		key = DefaultStreamKey
	}
	return &Stream{
		rdb:    redis.NewClient(opts),
		key:    key,
		maxLen: maxLen,
		logger: logger,
	}, nil
}

func (s *Stream) Platform() string { return PlatformRedis }

// Key returns the stream key.
func (s *Stream) Key() string { return s.key }

// Connect verifies the server is reachable.
func (s *Stream) Connect(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}
	s.mu.Lock()
	s.connectedAt = time.Now()
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// Broadcast implements gateway.GatewayAdapter.
func (s *Stream) Broadcast(ctx context.Context, evt *gateway.Event) error {
	_, err := s.Publish(ctx, evt)
	return err
}

// Publish appends evt and returns the stream entry id.
func (s *Stream) Publish(ctx context.Context, evt *gateway.Event) (string, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.key,
		Values: map[string]interface{}{
			"type": string(evt.Type),
			"data": string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", s.key, err)
	}

	s.logger.Debug("published event",
		zap.String("stream", s.key),
		zap.String("id", id),
		zap.String("type", string(evt.Type)))
	return id, nil
}

// Recent returns up to n of the newest entries, newest first.
func (s *Stream) Recent(ctx context.Context, n int64) ([]Entry, error) {
	msgs, err := s.rdb.XRevRangeN(ctx, s.key, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	return decode(msgs), nil
}

// Subscribe follows the stream from entries added after the call. The
// channel closes when ctx is cancelled.
func (s *Stream) Subscribe(ctx context.Context) <-chan Entry {
	ch := make(chan Entry, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := s.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{s.key, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					s.logger.Debug("stream read failed", zap.String("stream", s.key), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, e := range decode(r.Messages) {
					lastID = e.ID
					select {
					case ch <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

func decode(msgs []redis.XMessage) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var evt gateway.Event
		if json.Unmarshal([]byte(data), &evt) != nil {
			continue
		}
		out = append(out, Entry{ID: m.ID, Event: &evt})
	}
	return out
}

func (s *Stream) Status() gateway.AdapterStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := gateway.AdapterStatus{
		Platform:  PlatformRedis,
		Connected: !s.connectedAt.IsZero() && s.lastError == "",
		Error:     s.lastError,
		Details:   "stream=" + s.key,
	}
	if st.Connected {
		t := s.connectedAt
		st.ConnectedAt = &t
	}
	return st
}

// Close shuts down the Redis connection.
func (s *Stream) Close() error {
	return s.rdb.Close()
}
