package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/vault-nexus/internal/genome"
	"github.com/nidhogg/vault-nexus/internal/hypercube"
	"github.com/nidhogg/vault-nexus/internal/vectorstore"
	"go.uber.org/zap"
)

type storeRequest struct {
	Data map[string]any `json:"data"`
}

type queryRequest struct {
	Filters   map[string]any                `json:"filters"`
	Operators map[string]hypercube.Operator `json:"operators"`
	Limit     int                           `json:"limit"`
	CountOnly bool                          `json:"count_only"`
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (h *Handler) withinBudget(d time.Duration) bool {
	budget := time.Duration(h.cube.Stats().LatencyBudgetMs) * time.Millisecond
	return budget <= 0 || d < budget
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	start := time.Now()
	hash, err := h.cube.Store(req.Data)
	elapsed := time.Since(start)
	if err != nil {
		var serr *genome.SerializationError
		if errors.As(err, &serr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("store failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"genome":        hash,
		"timestamp":     time.Now().UTC(),
		"latency_ms":    millis(elapsed),
		"within_budget": h.withinBudget(elapsed),
		"pool":          h.cube.Pool(),
	})
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for dim, op := range req.Operators {
		if !op.Valid() {
			writeError(w, http.StatusBadRequest, "unknown operator "+strconv.Quote(string(op))+" for "+dim)
			return
		}
	}

	start := time.Now()
	resp := map[string]any{"success": true}
	if req.CountOnly {
		resp["count"] = h.cube.Count(req.Filters, req.Operators)
	} else {
		results := h.cube.Query(req.Filters, req.Operators)
		if req.Limit > 0 && len(results) > req.Limit {
			results = results[:req.Limit]
		}
		resp["count"] = len(results)
		resp["results"] = results
	}
	elapsed := time.Since(start)
	resp["latency_ms"] = millis(elapsed)
	resp["within_budget"] = h.withinBudget(elapsed)
	resp["timestamp"] = time.Now().UTC()
	writeJSON(w, http.StatusOK, resp)
}

type apiStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	BreathCycles     int     `json:"breath_cycles"`
	WebSocketClients int     `json:"websocket_clients"`
	Mirrored         int64   `json:"vector_mirrored,omitempty"`
	MirrorDropped    int64   `json:"vector_dropped,omitempty"`
}

func (h *Handler) cubeStats(w http.ResponseWriter, r *http.Request) {
	a := apiStats{
		UptimeSeconds: time.Since(h.started).Seconds(),
		BreathCycles:  h.breathCycle(),
	}
	if h.opts.Realtime != nil {
		a.WebSocketClients = h.opts.Realtime.Clients()
	}
	if h.opts.Similar != nil {
		a.Mirrored = h.opts.Similar.Mirrored()
		a.MirrorDropped = h.opts.Similar.Dropped()
	}
	writeJSON(w, http.StatusOK, struct {
		hypercube.Stats
		API apiStats `json:"api"`
	}{h.cube.Stats(), a})
}

func (h *Handler) dimensions(w http.ResponseWriter, r *http.Request) {
	type dim struct {
		Index int             `json:"index"`
		Name  string          `json:"name"`
		Group hypercube.Group `json:"group"`
	}
	out := make([]dim, hypercube.DimensionCount)
	for i, name := range hypercube.DimensionNames {
		out[i] = dim{Index: i, Name: name, Group: hypercube.GroupOf(i)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "genome")
	rec, ok := h.cube.Lookup(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":      rec,
		"overflow":    rec.Overflow,
		"occurrences": h.cube.Occurrences(hash),
	})
}

func (h *Handler) similar(w http.ResponseWriter, r *http.Request) {
	if h.opts.Similar == nil {
		writeError(w, http.StatusServiceUnavailable, "vector index not configured")
		return
	}
	hash := chi.URLParam(r, "genome")
	rec, ok := h.cube.Lookup(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	k := queryInt(r, "k", 10)
	matches, err := h.opts.Similar.Similar(r.Context(), &rec.Coordinates, hash, k)
	if errors.Is(err, vectorstore.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("similarity search failed", zap.String("genome", hash), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"genome": hash, "matches": matches})
}

func (h *Handler) exportCube(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="hypercube.json"`)
	if err := h.cube.Export(w); err != nil {
		h.logger.Error("hypercube export failed", zap.Error(err))
	}
}

func (h *Handler) importCube(w http.ResponseWriter, r *http.Request) {
	n, err := h.cube.Import(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": n, "total": h.cube.Len()})
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
