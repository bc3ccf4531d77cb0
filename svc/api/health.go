package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready    bool   `json:"ready"`
	Degraded bool   `json:"degraded"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := ReadyResponse{
		Ready:    true,
		Database: "ok",
		Cache:    "ok",
	}
	if s.db == nil {
		resp.Ready = false
		resp.Database = "not configured"
	} else if err := s.db.Ping(ctx); err != nil {
		resp.Ready = false
		resp.Database = "unreachable"
	}
	if s.rdb == nil {
		resp.Cache = "not configured"
	} else if err := s.rdb.Ping(ctx); err != nil {
		// Redis is an optional cache: readiness degrades, it does not fail.
		resp.Degraded = true
		resp.Cache = "unreachable"
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
