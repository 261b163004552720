package world

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/vault-nexus/internal/transfer"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Exporter writes a full export of one component to a file.
type Exporter interface {
	ExportFile(path string) error
}

// ExportResult describes one written export file.
type ExportResult struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration_ns"`
	Err      string        `json:"error,omitempty"`
}

// ExportHandler is told about every export round.
type ExportHandler func(ctx context.Context, results []ExportResult)

// ExportScheduler writes every registered component to dir on a cron
// schedule. Rounds never overlap.
type ExportScheduler struct {
	spec     string
	dir      string
	compress bool
	cron     *cron.Cron

	mu        sync.Mutex
	round     sync.Mutex
	exporters map[string]Exporter
	handlers  []ExportHandler
	now       func() time.Time
	logger    *zap.Logger
}

// NewExportScheduler validates spec, a standard five-field cron expression
// or a descriptor such as "@every 1h".
func NewExportScheduler(spec, dir string, compress bool, logger *zap.Logger) (*ExportScheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	s := &ExportScheduler{
		spec:      spec,
		dir:       dir,
		compress:  compress,
		cron:      cron.New(cron.WithParser(parser)),
		exporters: make(map[string]Exporter),
		now:       time.Now,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(spec, s.scheduled); err != nil {
		return nil, fmt.Errorf("schedule exports: %w", err)
	}
	return s, nil
}

// Add registers a component under name.
func (s *ExportScheduler) Add(name string, e Exporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exporters[name] = e
}

// Handle registers h for every finished round.
func (s *ExportScheduler) Handle(h ExportHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Start runs the cron scheduler in the background.
func (s *ExportScheduler) Start() {
	s.cron.Start()
	s.logger.Info("export scheduler started",
		zap.String("schedule", s.spec), zap.String("dir", s.dir))
}

// Stop halts scheduling and waits for a running round, or ctx.
func (s *ExportScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns when the next scheduled round fires, zero when stopped.
func (s *ExportScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *ExportScheduler) scheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("scheduled export failed", zap.Error(err))
	}
}

// RunOnce exports every component now. Every component is attempted; the
// returned error joins the failures.
func (s *ExportScheduler) RunOnce(ctx context.Context) ([]ExportResult, error) {
	s.round.Lock()
	defer s.round.Unlock()

	s.mu.Lock()
	names := make([]string, 0, len(s.exporters))
	for name := range s.exporters {
		names = append(names, name)
	}
	exporters := make(map[string]Exporter, len(s.exporters))
	for k, v := range s.exporters {
		exporters[k] = v
	}
	handlers := append([]ExportHandler(nil), s.handlers...)
	s.mu.Unlock()
	sort.Strings(names)

	stamp := s.now().UTC().Format("20060102T150405Z")
	var (
		results []ExportResult
		errs    []error
	)
	for _, name := range names {
		path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", name, stamp))
		if s.compress {
			path += transfer.CompressedExt
		}
		start := time.Now()
		err := exporters[name].ExportFile(path)
		res := ExportResult{Name: name, Path: path, Duration: time.Since(start)}
		if err != nil {
			res.Err = err.Error()
			errs = append(errs, fmt.Errorf("export %s: %w", name, err))
			s.logger.Warn("export failed", zap.String("component", name), zap.Error(err))
		} else {
			s.logger.Info("export written",
				zap.String("component", name),
				zap.String("path", path),
				zap.Duration("duration", res.Duration))
		}
		results = append(results, res)
	}

	for _, h := range handlers {
		h(ctx, results)
	}
	return results, errors.Join(errs...)
}
