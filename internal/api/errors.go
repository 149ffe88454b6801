package api

import (
	"errors"
	"net/http"

	"github.com/scttfrdmn/droprealms-api/internal/gcp"
	"go.uber.org/zap"
)

// ValidationError rejects a request before any outbound call is made
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a failure onto the response status
func statusFor(err error) int {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}

	var credErr *gcp.CredentialError
	if errors.As(err, &credErr) {
		return http.StatusServiceUnavailable
	}

	var cpErr *gcp.ControlPlaneError
	if errors.As(err, &cpErr) {
		if cpErr.Kind == gcp.KindNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	logger := s.requestLogger(r)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}
