package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/vault-nexus/internal/elephant"
	"github.com/nidhogg/vault-nexus/internal/events"
	"github.com/nidhogg/vault-nexus/internal/gateway"
	"github.com/nidhogg/vault-nexus/internal/hypercube"
	"github.com/nidhogg/vault-nexus/internal/memory"
	"github.com/nidhogg/vault-nexus/internal/store"
	"github.com/nidhogg/vault-nexus/internal/vectorstore"
	"github.com/nidhogg/vault-nexus/internal/world"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	systemName = "Vault Nexus"
	version    = "1.0.0"
)

// CycleLog reads the persisted cycle and generation archive.
type CycleLog interface {
	RecentCycles(ctx context.Context, limit int) ([]store.CycleRecord, error)
	ListGenerations(ctx context.Context) ([]elephant.GenerationSnapshot, error)
}

// GraphReader reads memory associations back from the graph.
type GraphReader interface {
	Neighbors(ctx context.Context, genome string) ([]memory.Neighbor, error)
}

// EventLog reads recently published events.
type EventLog interface {
	Recent(ctx context.Context, n int64) ([]events.Entry, error)
}

// SimilarityIndex finds records with nearby coordinates.
type SimilarityIndex interface {
	Similar(ctx context.Context, coords *hypercube.Coordinates, exclude string, k int) ([]vectorstore.Match, error)
	Mirrored() int64
	Dropped() int64
}

// Options carries the optional collaborators. Nil fields disable the
// routes that need them with 503.
type Options struct {
	Breath      *world.BreathCycle
	Realtime    *gateway.WebSocketAdapter
	Gateway     *gateway.Gateway
	Broadcaster *gateway.Broadcaster

	Cycles  CycleLog
	Graph   GraphReader
	Events  EventLog
	Similar SimilarityIndex

	// OnCycle is told about cycles triggered over HTTP.
	OnCycle func(ctx context.Context, rep elephant.CycleReport)
	// OnAdvance is told about single-phase advances triggered over HTTP.
	OnAdvance func(ctx context.Context, rep elephant.AdvanceReport)

	RateLimit    float64
	Burst        int
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cube    *hypercube.Cube
	engine  *elephant.Engine
	opts    Options
	limiter *rate.Limiter
	started time.Time
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cube *hypercube.Cube, engine *elephant.Engine, opts Options, logger *zap.Logger) *Handler {
	h := &Handler{
		cube:    cube,
		engine:  engine,
		opts:    opts,
		started: time.Now(),
		logger:  logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if len(h.opts.CORSOrigins) == 0 {
		h.opts.CORSOrigins = []string{"*"}
	}
	if h.opts.MaxBodyBytes <= 0 {
		h.opts.MaxBodyBytes = 10 << 20
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/", h.root)
	if h.opts.Realtime != nil {
		r.Handle("/ws/realtime", h.opts.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/stats", h.cubeStats)
		r.Get("/hypercube/dimensions", h.dimensions)
		r.Get("/hypercube/records/{genome}", h.getRecord)
		r.Get("/hypercube/export", h.exportCube)
		r.Get("/similar/{genome}", h.similar)

		r.Get("/wisdom", h.wisdom)
		r.Get("/elephant/stats", h.elephantStats)
		r.Get("/elephant/recall", h.recall)
		r.Get("/elephant/memories/{genome}", h.getMemory)
		r.Get("/elephant/memories/{genome}/neighbors", h.neighbors)
		r.Get("/elephant/export", h.exportElephant)

		r.Get("/cycles", h.listCycles)
		r.Get("/generations/archive", h.generationArchive)
		r.Get("/events", h.recentEvents)
		r.Get("/gateway/status", h.gatewayStatus)
		r.Get("/broadcasts", h.broadcastHistory)

		r.Group(func(r chi.Router) {
			r.Use(h.limitWrites)
			r.Use(h.limitBody)
			r.Post("/store", h.store)
			r.Post("/query", h.query)
			r.Post("/hypercube/import", h.importCube)
			r.Post("/echo", h.echo)
			r.Post("/elephant/advance", h.advance)
			r.Post("/elephant/cycle", h.runCycle)
			r.Post("/elephant/import", h.importElephant)
			r.Post("/broadcast", h.sendBroadcast)
		})
	})

	return r
}

// limitWrites rejects writes beyond the configured rate with 429.
func (h *Handler) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) breathCycle() int {
	if h.opts.Breath == nil {
		return 0
	}
	return h.opts.Breath.Cycle()
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         systemName + " API",
		"version":      version,
		"status":       "operational",
		"breath_cycle": h.breathCycle(),
		"websocket":    "/ws/realtime",
	})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	backends := map[string]string{
		"postgres": enabled(h.opts.Cycles != nil),
		"neo4j":    enabled(h.opts.Graph != nil),
		"redis":    enabled(h.opts.Events != nil),
		"qdrant":   enabled(h.opts.Similar != nil),
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"timestamp":    time.Now().UTC(),
		"system":       systemName,
		"version":      version,
		"breath_cycle": h.breathCycle(),
		"backends":     backends,
	})
}

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
