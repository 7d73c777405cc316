package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"jobsync-engine/internal/poll"
	"jobsync-engine/internal/store"
)

type HealthHandler struct {
	Store Store
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	n, err := h.Store.CountPostings(ctx)
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "postings": n})
}

type StatsHandler struct {
	Store  Store
	Queue  QueueDepth
	Runner Runner
}

type statsResponse struct {
	store.Stats
	Queue map[string]int `json:"queue,omitempty"`
	Run   *poll.Status   `json:"lastRun,omitempty"`
}

func (h StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.Stats(r.Context(), 10)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	resp := statsResponse{Stats: st}
	if h.Queue != nil {
		if depth, err := h.Queue.Depth(r.Context()); err == nil {
			resp.Queue = depth
		}
	}
	if h.Runner != nil {
		run := h.Runner.Status()
		resp.Run = &run
	}
	WriteJSON(w, http.StatusOK, resp)
}

type RunHandler struct {
	Runner Runner
}

// Run executes one scheduler pass synchronously. ?limit=N caps the number
// of sources.
func (h RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	rep, err := h.Runner.Run(r.Context(), limit)
	switch {
	case errors.Is(err, poll.ErrRunInProgress):
		WriteError(w, r, http.StatusConflict, "run_in_progress", err.Error())
	case err != nil:
		writeErrorDetails(w, r, http.StatusInternalServerError, "run_failed", err.Error(), rep)
	default:
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "report": rep})
	}
}
