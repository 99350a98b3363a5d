package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/query"
)

const topProspectsPerCity = 5

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted converted rejected"`
	Notes  string `json:"notes"`
}

type suppressRequest struct {
	Domain string `json:"domain" validate:"required"`
	Reason string `json:"reason"`
}

type successResponse struct {
	Success   bool   `json:"success"`
	NewStatus string `json:"new_status,omitempty"`
}

func (s *Server) handleListProspects(w http.ResponseWriter, r *http.Request) {
	f, err := query.ParseFilters(r.URL.Query())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	page, err := s.deps.Query.List(r.Context(), f)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetProspect(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Query.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	err := s.deps.Query.UpdateStatus(r.Context(), chi.URLParam(r, "id"), model.ProspectStatus(req.Status), req.Notes)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, NewStatus: req.Status})
}

func (s *Server) handleDeleteProspect(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Query.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "Unsubscribed"
	}
	if err := s.deps.Query.Suppress(r.Context(), req.Domain, req.Reason); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.deps.Query.FilterOptions(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.deps.Query.Cities(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cities": cities, "total": len(cities)})
}

func (s *Server) handleCityStats(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	stats, err := s.deps.Query.CityStats(r.Context(), city)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	top, err := s.deps.Query.List(r.Context(), query.Filters{City: city, Limit: topProspectsPerCity})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "top_prospects": top.Prospects})
}
