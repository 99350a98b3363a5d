package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/drmonteiro/brands-ai/internal/cache"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/query"
	"github.com/drmonteiro/brands-ai/internal/store"
)

type runsQuery struct {
	Status string `json:"status" validate:"omitempty,oneof=running waiting_approval complete failed"`
	City   string `json:"city"`
	Limit  int    `json:"limit" validate:"min=0,max=500"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rq := runsQuery{Status: q.Get("status"), City: q.Get("city")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErr(w, r, &query.ValidationError{Field: "limit", Message: "must be an integer"})
			return
		}
		rq.Limit = n
	}
	if err := s.check(rq); err != nil {
		writeErr(w, r, err)
		return
	}

	runs, err := s.deps.Runs.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(rq.Status),
		City:   model.NormalizeCity(rq.City),
		Limit:  rq.Limit,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "total": len(runs)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "monitoring is not configured")
		return
	}
	snap, err := s.deps.Stats.Collect(r.Context(), s.deps.LookbackHours)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	key := cache.NormalizeKey(chi.URLParam(r, "city"))
	if key == "" {
		writeErr(w, r, &query.ValidationError{Field: "city", Message: "must not be blank"})
		return
	}
	if err := s.deps.Cache.Invalidate(r.Context(), key); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
