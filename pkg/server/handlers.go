package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/ratelimit"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	status, err := s.governor.Budget().Status(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "budget status unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type rateLimitResponse struct {
	Limit int64              `json:"limit"`
	Keys  []ratelimit.Status `json:"keys"`
}

// handleRateLimit reports the window of every active key. ?key= narrows
// the report to one key.
func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	limiter := s.governor.RateLimiter()
	resp := rateLimitResponse{Limit: limiter.Limit(), Keys: []ratelimit.Status{}}

	if key := r.URL.Query().Get("key"); key != "" {
		resp.Keys = append(resp.Keys, limiter.Status(key))
	} else {
		for _, key := range limiter.Keys() {
			resp.Keys = append(resp.Keys, limiter.Status(key))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.governor.Breaker().Stats())
}

// handleCircuitReset closes one circuit (?key=) or all of them.
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	breaker := s.governor.Breaker()
	if key := r.URL.Query().Get("key"); key != "" {
		breaker.Reset(key)
		s.logger.InfoContext(r.Context(), "circuit reset", "circuit_key", key)
	} else {
		breaker.ResetAll()
		s.logger.InfoContext(r.Context(), "all circuits reset")
	}
	writeJSON(w, http.StatusOK, breaker.Stats())
}

// handleJobs lists job summaries, optionally filtered by ?status= (repeatable).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	for _, v := range r.URL.Query()["status"] {
		st := jobs.Status(v)
		if !validStatus(st) {
			writeError(w, http.StatusBadRequest, "unknown job status: "+v)
			return
		}
		statuses = append(statuses, st)
	}

	list := s.governor.Jobs().List(statuses...)
	if list == nil {
		list = []jobs.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.governor.Jobs().Get(r.PathValue("id"))
	if errors.Is(err, limits.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	registry := s.governor.Jobs()

	if _, err := registry.Get(id); errors.Is(err, limits.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !registry.Cancel(id) {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}

	job, _ := registry.Get(id)
	writeJSON(w, http.StatusOK, job)
}

func validStatus(st jobs.Status) bool {
	for _, s := range jobs.Statuses {
		if s == st {
			return true
		}
	}
	return false
}
