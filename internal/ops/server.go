// Package ops exposes the operational HTTP surface of the sync service.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"restakeRates/internal/ratesync"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunStatus remembers the outcome of the latest sync run.
type RunStatus struct {
	mu       sync.RWMutex
	started  time.Time
	duration time.Duration
	tokens   int
	failed   []string
	err      string
}

// Record stores the outcome of a run.
func (s *RunStatus) Record(summary ratesync.RunSummary, err error) {
	failed := make([]string, 0)
	for _, r := range summary.Failed() {
		failed = append(failed, r.Symbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = summary.StartedAt
	s.duration = summary.Duration
	s.tokens = len(summary.Results)
	s.failed = failed
	s.err = ""
	if err != nil {
		s.err = err.Error()
	}
}

type statusResponse struct {
	Status       string   `json:"status"`
	LastRun      string   `json:"last_run,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	Tokens       int      `json:"tokens"`
	FailedTokens []string `json:"failed_tokens,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func (s *RunStatus) snapshot() statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := statusResponse{
		Tokens:       s.tokens,
		FailedTokens: append([]string(nil), s.failed...),
		Error:        s.err,
	}
	if !s.started.IsZero() {
		resp.LastRun = s.started.UTC().Format(time.RFC3339)
		resp.Duration = s.duration.String()
	}
	return resp
}

// NewRouter serves /healthz, /readyz, /status and /metrics.
func NewRouter(db Pinger, status *RunStatus) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Error: err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := status.snapshot()
		resp.Status = "ok"
		if resp.Error != "" || len(resp.FailedTokens) > 0 {
			resp.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, resp)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
