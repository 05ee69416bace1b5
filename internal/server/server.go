// Package server exposes the operational HTTP surface: liveness of
// the store backends and the per-pipeline sync counters. The read-side
// query APIs live elsewhere; nothing here serves user data.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"usersync/internal/sync"
)

// Backend pairs one pipeline with its record store for reporting.
type Backend struct {
	Pipeline *sync.Pipeline
	Store    sync.RecordStore
}

type Server struct {
	backends map[string]Backend
}

func NewServer(backends map[string]Backend) *Server {
	return &Server{backends: backends}
}

// Router wires the ops endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/api/sync/stats", s.Stats).Methods("GET")
	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Service   string            `json:"service"`
	Stores    map[string]string `json:"stores"`
}

// Health handles GET /health - reports per-store reachability.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		Service:   "user-sync",
		Stores:    make(map[string]string, len(s.backends)),
	}

	statusCode := http.StatusOK
	for name, backend := range s.backends {
		if err := backend.Store.Ping(ctx); err != nil {
			response.Stores[name] = err.Error()
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			response.Stores[name] = "up"
		}
	}

	s.writeJSONResponse(w, statusCode, response)
}

type backendStats struct {
	Pipeline sync.PipelineStats `json:"pipeline"`
	Records  *sync.Stats        `json:"records,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Stats handles GET /api/sync/stats - per-backend pipeline counters
// and record counts.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := make(map[string]backendStats, len(s.backends))
	for name, backend := range s.backends {
		stats := backendStats{Pipeline: backend.Pipeline.Stats()}
		if records, err := backend.Store.Stats(ctx); err != nil {
			stats.Error = err.Error()
		} else {
			stats.Records = &records
		}
		response[name] = stats
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
