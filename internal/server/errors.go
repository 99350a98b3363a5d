package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/outreach"
	"github.com/drmonteiro/brands-ai/internal/pipeline"
	"github.com/drmonteiro/brands-ai/internal/query"
	"github.com/drmonteiro/brands-ai/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// httpStatus maps domain errors to status codes.
func httpStatus(err error) int {
	var oe *outreach.ValidationError
	switch {
	case pipeline.IsValidation(err), query.IsValidation(err), errors.As(err, &oe):
		return http.StatusBadRequest
	case pipeline.IsResumeConflict(err):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr answers with the status for err. Internal errors are logged and
// their details withheld.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		msg = "not found"
	case http.StatusInternalServerError:
		zap.L().Error("server: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeError(w, status, msg)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &query.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	return s.check(v)
}

// check validates v against its struct tags.
func (s *Server) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			ve := verrs[0]
			return &query.ValidationError{Field: ve.Field(), Message: fmt.Sprintf("failed %s check", ve.Tag())}
		}
		return &query.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}
