package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"go.uber.org/zap"
)

const maxRequestBodyBytes = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, Greeting)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.decodeInstanceRef(w, r)
	if !ok {
		return
	}

	if _, err := s.instances.StartInstance(r.Context(), ref); err != nil {
		s.fail(w, r, types.EventStart, ref, err)
		return
	}

	s.notify(r, types.StartedNotification(ref))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.decodeInstanceRef(w, r)
	if !ok {
		return
	}

	if _, err := s.instances.StopInstance(r.Context(), ref); err != nil {
		s.fail(w, r, types.EventStop, ref, err)
		return
	}

	s.notify(r, types.StoppedNotification(ref))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIP(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.decodeInstanceRef(w, r)
	if !ok {
		return
	}

	lookup, err := s.instances.GetExternalIP(r.Context(), ref)
	if err != nil {
		s.fail(w, r, types.EventIP, ref, err)
		return
	}

	s.notify(r, types.IPNotification(ref))
	writeText(w, http.StatusOK, lookup.Text())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.decodeInstanceRef(w, r)
	if !ok {
		return
	}

	snapshot, err := s.instances.DescribeInstance(r.Context(), ref)
	if err != nil {
		s.fail(w, r, types.EventStatus, ref, err)
		return
	}

	s.notify(r, types.StatusNotification(ref, snapshot.Status))
	writeText(w, http.StatusOK, snapshot.Status)
}

// decodeInstanceRef parses and validates the body. On failure the 400 response is already written.
func (s *Server) decodeInstanceRef(w http.ResponseWriter, r *http.Request) (types.InstanceRef, bool) {
	var ref types.InstanceRef

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		s.writeError(w, r, &ValidationError{Reason: "invalid JSON payload", Err: err})
		return ref, false
	}
	if err := ref.Validate(); err != nil {
		s.writeError(w, r, &ValidationError{Reason: err.Error()})
		return ref, false
	}

	return ref, true
}

// fail writes the error response and, when enabled, notifies about the failure
func (s *Server) fail(w http.ResponseWriter, r *http.Request, event types.InstanceEvent, ref types.InstanceRef, err error) {
	if s.config.Notify.NotifyFailures {
		s.notify(r, types.FailureNotification(event, ref, err))
	}
	s.writeError(w, r, err)
}

// notify is best-effort. It outlives client disconnects but is bounded by the notify timeout,
// and its failure never changes the response.
func (s *Server) notify(r *http.Request, n types.Notification) {
	timeout := s.config.Notify.TimeoutDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.requestLogger(r).Warn("Notification failed",
			zap.String("event", string(n.Event)),
			zap.String("instance", n.Instance.Name),
			zap.Error(err))
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
