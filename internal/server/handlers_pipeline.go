package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/pipeline"
	"github.com/drmonteiro/brands-ai/internal/stream"
)

type startRequest struct {
	City         string `json:"city" validate:"required"`
	ForceRefresh bool   `json:"force_refresh"`
}

type resumeRequest struct {
	ThreadID string          `json:"thread_id" validate:"required"`
	Node     string          `json:"node" validate:"required"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data"`
}

type approveEmailRequest struct {
	BrandName string           `json:"brandName" validate:"required"`
	BrandData *model.BrandLead `json:"brandData" validate:"required"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	st, err := s.deps.Pipeline.Start(r.Context(), req.City, pipeline.StartOptions{ForceRefresh: req.ForceRefresh})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.pipe(w, r, st)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	st, err := s.deps.Pipeline.Resume(r.Context(), pipeline.ResumeRequest{
		ThreadID: req.ThreadID,
		Gate:     req.Node,
		Action:   req.Action,
		Data:     req.Data,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.pipe(w, r, st)
}

// pipe streams a run's events as server-sent events.
func (s *Server) pipe(w http.ResponseWriter, r *http.Request, st *stream.Stream) {
	sw, err := stream.NewWriter(w)
	if err != nil {
		st.Cancel()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !stream.Pipe(r.Context(), st, sw) {
		zap.L().Debug("server: stream ended without terminal event", zap.String("path", r.URL.Path))
	}
}

func (s *Server) handleApproveEmail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "email is not configured")
		return
	}
	var req approveEmailRequest
	if err := s.decode(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	lead := *req.BrandData
	if lead.Name == "" {
		lead.Name = req.BrandName
	}
	if err := s.deps.Notifier.Notify(r.Context(), lead, model.EmailSourceManual); err != nil {
		if status := httpStatus(err); status == http.StatusBadRequest {
			writeError(w, status, err.Error())
			return
		}
		zap.L().Warn("server: outreach email failed", zap.String("brand", lead.Name), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to send email")
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
