package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/vault-nexus/internal/elephant"
	"github.com/nidhogg/vault-nexus/internal/genome"
	"go.uber.org/zap"
)

type echoRequest struct {
	Content map[string]any `json:"content"`
	Tags    []string       `json:"tags"`
}

// echo ingests content into the lifecycle engine.
func (h *Handler) echo(w http.ResponseWriter, r *http.Request) {
	var req echoRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := h.engine.Ingest(req.Content, req.Tags)
	if err != nil {
		var serr *genome.SerializationError
		if errors.As(err, &serr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	m, err := h.engine.Memory(hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"genome":     hash,
		"phase":      m.Phase,
		"page":       m.Page,
		"timestamp":  time.Now().UTC(),
		"strength":   m.Strength,
		"echo_count": m.EchoCount,
		"decay_rate": 0.0,
	})
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (h *Handler) wisdom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := map[string]any{"success": true}

	if g := q.Get("generation"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil {
			writeError(w, http.StatusBadRequest, "generation must be an integer")
			return
		}
		snap, ok := h.engine.Generation(n)
		if !ok {
			writeError(w, http.StatusNotFound, "generation "+g+" not found")
			return
		}
		resp["wisdom"] = snap
	} else {
		resp["wisdom"] = h.engine.Wisdom()
	}

	memories := []elephant.Memory{}
	if tags := splitTags(q.Get("tags")); len(tags) > 0 {
		memories = h.engine.Recall(elephant.RecallQuery{
			Tags:  tags,
			Limit: queryInt(r, "limit", elephant.DefaultRecallLimit),
		})
	}
	resp["memories"] = memories
	resp["timestamp"] = time.Now().UTC()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) elephantStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) recall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rq := elephant.RecallQuery{
		Genome: q.Get("genome"),
		Tags:   splitTags(q.Get("tags")),
		Limit:  queryInt(r, "limit", elephant.DefaultRecallLimit),
	}
	if p := q.Get("phase"); p != "" {
		phase, err := elephant.ParsePhase(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rq.Phase = phase
	}
	memories := h.engine.Recall(rq)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(memories), "memories": memories})
}

func (h *Handler) getMemory(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Memory(chi.URLParam(r, "genome"))
	if errors.Is(err, elephant.ErrMemoryNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) neighbors(w http.ResponseWriter, r *http.Request) {
	if h.opts.Graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph store not configured")
		return
	}
	hash := chi.URLParam(r, "genome")
	nbrs, err := h.opts.Graph.Neighbors(r.Context(), hash)
	if err != nil {
		h.logger.Warn("neighbor lookup failed", zap.String("genome", hash), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"genome": hash, "neighbors": nbrs})
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	phase, err := elephant.ParsePhase(r.URL.Query().Get("phase"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if phase == elephant.Intake {
		writeError(w, http.StatusBadRequest, "INTAKE is not a promotion target")
		return
	}
	rep := h.engine.Advance(phase)
	if h.opts.OnAdvance != nil {
		h.opts.OnAdvance(r.Context(), rep)
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) runCycle(w http.ResponseWriter, r *http.Request) {
	rep := h.engine.RunCycle()
	if h.opts.OnCycle != nil {
		h.opts.OnCycle(r.Context(), rep)
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) exportElephant(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="elephant.json"`)
	if err := h.engine.Export(w); err != nil {
		h.logger.Error("elephant export failed", zap.Error(err))
	}
}

func (h *Handler) importElephant(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Import(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
