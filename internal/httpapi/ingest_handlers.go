package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/events"
	"jobsync-engine/internal/ingest"
)

const defaultMaxBody = 8 << 20

type IngestHandler struct {
	Pipeline     Pipeline
	Hub          *events.Hub
	MaxBodyBytes int64
}

type ingestRequest struct {
	Jobs []ingest.Input `json:"jobs"`
}

type ingestResponse struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	InvalidJobs []ingest.InvalidItem `json:"invalidJobs,omitempty"`
	Data        *ingest.Summary      `json:"data,omitempty"`
}

// Post validates the whole batch before writing anything. One invalid job
// rejects the request.
func (h IngestHandler) Post(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON: " + err.Error()
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			msg = fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit)
		}
		WriteJSON(w, http.StatusBadRequest, ingestResponse{Message: msg})
		return
	}
	if len(req.Jobs) == 0 {
		WriteJSON(w, http.StatusBadRequest, ingestResponse{Message: "jobs must be a non-empty array"})
		return
	}

	if invalid := ingest.Validate(req.Jobs); len(invalid) > 0 {
		WriteJSON(w, http.StatusBadRequest, ingestResponse{
			Message:     fmt.Sprintf("%d of %d jobs failed validation; nothing was stored", len(invalid), len(req.Jobs)),
			InvalidJobs: invalid,
		})
		return
	}

	postings := make([]domain.Posting, len(req.Jobs))
	for i, in := range req.Jobs {
		postings[i] = in.ToPosting()
	}

	reqID := RequestIDFrom(r.Context())
	sum, err := h.Pipeline.Apply(r.Context(), postings)
	if err != nil {
		log.Error().Str("component", "http").Str("request_id", reqID).Err(err).Msg("ingest enqueue failed")
		WriteJSON(w, http.StatusInternalServerError, ingestResponse{
			Message: "jobs were stored but queueing failed: " + err.Error(),
			Data:    &sum,
		})
		return
	}

	h.Hub.Emit(reqID, events.TypeIngestCompleted, sum)
	WriteJSON(w, http.StatusOK, ingestResponse{
		Success: sum.Failed == 0,
		Message: fmt.Sprintf("processed %d jobs: %d new, %d skipped, %d failed", sum.Total, sum.New, sum.Skipped, sum.Failed),
		Data:    &sum,
	})
}
