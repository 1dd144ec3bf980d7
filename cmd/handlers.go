package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/router"
)

const version = "1.0.0"

// Operation names recorded in the latency collector.
const (
	opRouteAndAnswer = "route_and_answer"
	opEnsemble       = "ensemble"
	opTimeTravel     = "time_travel_total"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type handlers struct {
	app *app
}

type errorBody struct {
	Error     string    `json:"error"`
	Detail    any       `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string, detail any) {
	writeJSON(w, status, errorBody{
		Error:     msg,
		Detail:    detail,
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrAllProvidersFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error, detail any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("http: request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, r, status, err.Error(), detail)
}

// decode reads a JSON body into v. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        "answer-router",
		"version":     version,
		"description": "Route questions to the cheapest adequate model and synthesize ensemble answers",
		"health":      "/api/health",
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	a := h.app
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"timestamp":           time.Now().UTC(),
		"version":             version,
		"api_key_configured":  len(a.registry.Configured()) > 0,
		"providers":           a.providerKeys,
		"configured_models":   a.registry.Configured(),
		"search_providers":    a.search.Providers(),
		"cache_enabled":       a.cfg.Cache.Enabled,
		"time_travel_enabled": a.timeTravel.Enabled(),
	})
}

func (h *handlers) routeAndAnswer(w http.ResponseWriter, r *http.Request) {
	var req router.AnswerRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	resp, err := h.app.router.RouteAndAnswer(r.Context(), req)
	h.app.collector.Record(opRouteAndAnswer, time.Since(start), err == nil)
	if err != nil {
		if resp != nil {
			h.fail(w, r, err, resp)
			return
		}
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) ensemble(w http.ResponseWriter, r *http.Request) {
	var req router.EnsembleRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	resp, err := h.app.router.Ensemble(r.Context(), req)
	h.app.collector.Record(opEnsemble, time.Since(start), err == nil)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) synthesize(w http.ResponseWriter, r *http.Request) {
	var req router.SynthesisRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.app.router.Synthesize(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.router.Models())
}

func (h *handlers) routingStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"statistics": h.app.router.Stats(),
		"timestamp":  time.Now().UTC(),
	})
}

func (h *handlers) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"response_cache":       h.app.orch.CacheStats(),
		"classification_cache": h.app.classifier.CacheStats(),
		"timestamp":            time.Now().UTC(),
	})
}

func (h *handlers) clearClassificationCache(w http.ResponseWriter, _ *http.Request) {
	h.app.router.ClearClassificationCache()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Classification cache cleared",
		"timestamp": time.Now().UTC(),
	})
}

func (h *handlers) circuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"circuits":  h.app.orch.BreakerStates(),
		"open":      h.app.orch.OpenCircuits(),
		"timestamp": time.Now().UTC(),
	})
}

func (h *handlers) performance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.collector.Collect())
}

func (h *handlers) alerts(w http.ResponseWriter, _ *http.Request) {
	alerts := h.app.checker.Alerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":    alerts,
		"count":     len(alerts),
		"timestamp": time.Now().UTC(),
	})
}

func (h *handlers) resetMetrics(w http.ResponseWriter, _ *http.Request) {
	h.app.collector.Reset()
	h.app.router.ResetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Metrics reset",
		"timestamp": time.Now().UTC(),
	})
}

// timeTravelRequest is the body of every time-travel endpoint.
type timeTravelRequest struct {
	Question string `json:"question"`
	Force    bool   `json:"force_time_travel"`
}

func (t *timeTravelRequest) validate() error {
	t.Question = strings.TrimSpace(t.Question)
	n := utf8.RuneCountInString(t.Question)
	if n == 0 || n > router.MaxQuestionChars {
		return eris.Wrapf(router.ErrInvalidRequest, "question must be 1 to %d characters", router.MaxQuestionChars)
	}
	return nil
}

func (h *handlers) timeTravel(w http.ResponseWriter, r *http.Request) {
	var req timeTravelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, err, nil)
		return
	}

	start := time.Now()
	res, err := h.app.timeTravel.Run(r.Context(), req.Question, req.Force)
	h.app.collector.Record(opTimeTravel, time.Since(start), err == nil)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
