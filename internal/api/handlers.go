package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fatalwatch/internal/event"
	"fatalwatch/internal/pipeline"
	"fatalwatch/pkg/logger"
)

const maxBatchLines = 100

type Server struct {
	Monitor  *pipeline.Monitor
	Matcher  *event.Matcher
	registry *prometheus.Registry
}

type MatchRequest struct {
	Line string `json:"line"`
}

type BatchRequest struct {
	Lines []string `json:"lines"`
}

// MatchResult is the JSON form of a match attempt.
type MatchResult struct {
	Matched bool              `json:"matched"`
	Event   *event.FatalEvent `json:"event,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func NewServer(m *pipeline.Monitor) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.Metrics())
	return &Server{Monitor: m, Matcher: event.NewMatcher(), registry: reg}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Wrap all handlers with request ID middleware
	mux.Handle("/match", RequestIDMiddleware(http.HandlerFunc(s.handleMatch)))
	mux.Handle("/match/batch", RequestIDMiddleware(http.HandlerFunc(s.handleMatchBatch)))
	mux.Handle("/health", RequestIDMiddleware(http.HandlerFunc(s.handleHealth)))
	mux.Handle("/metrics", RequestIDMiddleware(http.HandlerFunc(s.handleMetrics)))
	mux.Handle("/metrics/prometheus", RequestIDMiddleware(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

func (s *Server) match(line string) MatchResult {
	return MatchLine(s.Matcher, line)
}

// MatchLine runs m against one raw log line.
func MatchLine(m *event.Matcher, line string) MatchResult {
	ev, ok, err := m.Match(line)
	res := MatchResult{Matched: ok}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if ok {
		res.Event = &ev
	}
	return res
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rid := GetRequestID(r.Context())
	log := logger.Get().With("request_id", rid)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		log.Warnw("request rejected", "method", r.Method, "path", r.URL.Path, "status", http.StatusMethodNotAllowed)
		return
	}

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		log.Warnw("invalid JSON body", "error", err, "status", http.StatusBadRequest)
		return
	}

	res := s.match(req.Line)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)

	log.Infow("request completed",
		"matched", res.Matched,
		"status", http.StatusOK,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Server) handleMatchBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rid := GetRequestID(r.Context())
	log := logger.Get().With("request_id", rid)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		log.Warnw("invalid method for /match/batch",
			"method", r.Method, "path", r.URL.Path, "status", http.StatusMethodNotAllowed,
		)
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		log.Warnw("invalid JSON for /match/batch",
			"error", err, "status", http.StatusBadRequest,
		)
		return
	}

	if len(req.Lines) > maxBatchLines {
		http.Error(w, "too many lines (max 100)", http.StatusBadRequest)
		log.Warnw("batch rejected: too many lines",
			"count", len(req.Lines), "status", http.StatusBadRequest,
		)
		return
	}

	results := make([]MatchResult, 0, len(req.Lines))
	for _, line := range req.Lines {
		results = append(results, s.match(line))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	log.Infow("batch matched",
		"count", len(req.Lines),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rid := GetRequestID(r.Context())
	log := logger.Get().With("request_id", rid)

	active := s.Monitor.ActiveWorkers()
	healthy := s.Monitor.Context().Err() == nil && active > 0

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":        healthy,
		"active_workers": active,
	})

	log.Debugw("health check", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "healthy", healthy)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rid := GetRequestID(r.Context())
	log := logger.Get().With("request_id", rid)

	metrics := s.Monitor.Metrics().Snapshot()
	metrics["active_workers"] = s.Monitor.ActiveWorkers()
	metrics["monitored_files"] = s.Monitor.WorkerCount()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metrics)

	log.Debugw("metrics requested",
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
}
