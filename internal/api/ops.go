package api

import (
	"net/http"

	"github.com/nidhogg/vault-nexus/internal/gateway"
	"go.uber.org/zap"
)

func (h *Handler) listCycles(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cycles == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle log not configured")
		return
	}
	cycles, err := h.opts.Cycles.RecentCycles(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Warn("list cycles failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (h *Handler) generationArchive(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cycles == nil {
		writeError(w, http.StatusServiceUnavailable, "cycle log not configured")
		return
	}
	gens, err := h.opts.Cycles.ListGenerations(r.Context())
	if err != nil {
		h.logger.Warn("list generations failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gens)
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	if h.opts.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	entries, err := h.opts.Events.Recent(r.Context(), int64(queryInt(r, "limit", 50)))
	if err != nil {
		h.logger.Warn("read events failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	if h.opts.Gateway == nil {
		writeJSON(w, http.StatusOK, []gateway.AdapterStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Gateway.Statuses())
}

func (h *Handler) broadcastHistory(w http.ResponseWriter, r *http.Request) {
	if h.opts.Broadcaster == nil {
		writeJSON(w, http.StatusOK, []gateway.BroadcastRecord{})
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Broadcaster.History(queryInt(r, "limit", 50)))
}

func (h *Handler) sendBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.opts.Broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, "gateway not configured")
		return
	}
	var evt gateway.Event
	if err := decodeBody(r, &evt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if evt.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if err := h.opts.Broadcaster.Send(r.Context(), &evt); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "broadcast sent"})
}
