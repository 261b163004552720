package world

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/vault-nexus/internal/elephant"
	"go.uber.org/zap"
)

// Mark is a point inside one breath.
type Mark string

const (
	Pulse        Mark = "PULSE"
	Glow         Mark = "GLOW"
	Trade        Mark = "TRADE"
	Flow         Mark = "FLOW"
	FlowComplete Mark = "FLOW_COMPLETE"
	Reset        Mark = "RESET"
)

// DefaultBreathPeriod is the length of one breath.
const DefaultBreathPeriod = 9 * time.Second

// CycleRunner runs one lifecycle cycle. *elephant.Engine satisfies it.
type CycleRunner interface {
	RunCycle() elephant.CycleReport
}

// BreathEvent is emitted for every mark.
type BreathEvent struct {
	Mark   Mark                  `json:"phase"`
	Cycle  int                   `json:"cycle"`
	At     time.Time             `json:"timestamp"`
	Report *elephant.CycleReport `json:"elephant_stats,omitempty"`
}

// BreathHandler consumes breath events.
type BreathHandler func(ctx context.Context, evt BreathEvent)

type markOffset struct {
	mark Mark
	at   time.Duration
}

// BreathCycle is a ClockListener that emits PULSE, GLOW, TRADE and FLOW at
// 0, 1/3, 2/3 and 8/9 of each period and RESET when the period ends. FLOW
// runs the lifecycle cycle and is followed by FLOW_COMPLETE carrying the
// report.
type BreathCycle struct {
	period   time.Duration
	marks    []markOffset
	runner   CycleRunner
	handlers []BreathHandler

	mu     sync.Mutex
	cycle  int
	start  time.Time
	next   int
	logger *zap.Logger
}

// NewBreathCycle creates a breath cycle. runner may be nil.
func NewBreathCycle(period time.Duration, runner CycleRunner, logger *zap.Logger) *BreathCycle {
	if period <= 0 {
		period = DefaultBreathPeriod
	}
	return &BreathCycle{
		period: period,
		marks: []markOffset{
			{Pulse, 0},
			{Glow, period / 3},
			{Trade, period * 2 / 3},
			{Flow, period * 8 / 9},
		},
		runner: runner,
		logger: logger,
	}
}

// Period returns the breath length.
func (b *BreathCycle) Period() time.Duration { return b.period }

// Handle registers h. Handlers must be registered before the clock starts.
func (b *BreathCycle) Handle(h BreathHandler) {
	b.handlers = append(b.handlers, h)
}

// Cycle returns the current breath number, starting at 1.
func (b *BreathCycle) Cycle() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cycle
}

// OnTick implements ClockListener.
func (b *BreathCycle) OnTick(now time.Time) {
	for _, evt := range b.due(now) {
		b.emit(evt)
		if evt.Mark == Flow && b.runner != nil {
			rep := b.runner.RunCycle()
			b.emit(BreathEvent{Mark: FlowComplete, Cycle: evt.Cycle, At: time.Now().UTC(), Report: &rep})
		}
	}
}

// due advances the schedule to now and returns the marks that passed.
func (b *BreathCycle) due(now time.Time) []BreathEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.start.IsZero() {
		b.start, b.cycle, b.next = now, 1, 0
	} else if now.Sub(b.start) >= 2*b.period {
		b.logger.Warn("breath fell behind, realigning",
			zap.Int("cycle", b.cycle),
			zap.Duration("behind", now.Sub(b.start)-b.period))
		b.start, b.cycle, b.next = now, b.cycle+1, 0
	}

	var out []BreathEvent
	for {
		elapsed := now.Sub(b.start)
		if b.next < len(b.marks) {
			if elapsed < b.marks[b.next].at {
				break
			}
			out = append(out, BreathEvent{Mark: b.marks[b.next].mark, Cycle: b.cycle, At: now.UTC()})
			b.next++
			continue
		}
		if elapsed < b.period {
			break
		}
		out = append(out, BreathEvent{Mark: Reset, Cycle: b.cycle, At: now.UTC()})
		b.start = b.start.Add(b.period)
		b.cycle++
		b.next = 0
	}
	return out
}

func (b *BreathCycle) emit(evt BreathEvent) {
	b.logger.Debug("breath", zap.String("mark", string(evt.Mark)), zap.Int("cycle", evt.Cycle))
	ctx, cancel := context.WithTimeout(context.Background(), b.period)
	defer cancel()
	for _, h := range b.handlers {
		h(ctx, evt)
	}
}
