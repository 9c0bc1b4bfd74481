package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"zeex-stream/work/logger"
	"zeex-stream/work/middleware"
	"zeex-stream/work/proxy"
	"zeex-stream/work/registry"
	"zeex-stream/work/token"
	"zeex-stream/work/utils"
)

// CreateLinkRequest is the body for POST /api/links, sent by the catalog
// ingestion layer when a new video upload is registered.
type CreateLinkRequest struct {
	FileID string `json:"file_id"`
}

// CreateLinkResponse returns the stable public link for a provider file id.
type CreateLinkResponse struct {
	Token     string `json:"token"`
	StreamURL string `json:"stream_url"`
}

// LinkResponse describes a registered mapping for the admin lookup endpoint.
type LinkResponse struct {
	Token     string    `json:"token"`
	FileID    string    `json:"file_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse describes one active streaming session for /api/status.
type SessionResponse struct {
	Token      string `json:"token"`
	RemoteAddr string `json:"remoteAddr"`
	Status     int    `json:"status"`
	BytesSent  string `json:"bytesSent"`
	Duration   string `json:"duration"`
}

// StatsResponse aggregates operational statistics for the admin API.
type StatsResponse struct {
	ActiveStreams    int                    `json:"activeStreams"`
	Uptime           string                 `json:"uptime"`
	MemoryUsage      string                 `json:"memoryUsage"`
	WorkerThreads    int                    `json:"workerThreads"`
	MaxStreams       int                    `json:"maxStreams"`
	RegistryDatabase map[string]interface{} `json:"registryDatabase"`
}

var apiStartTime = time.Now()

// setupAPIRoutes registers the JSON API surface consumed by the catalog
// backend and the admin frontend. These routes are gzip-compressed; the
// streaming routes are not.
func setupAPIRoutes(router *mux.Router, sp *proxy.StreamProxy) {
	router.HandleFunc("/api/links", middleware.GzipMiddleware(handleCreateLink(sp))).Methods("POST")
	router.HandleFunc("/api/links/{token}", middleware.GzipMiddleware(handleGetLink(sp))).Methods("GET")
	router.HandleFunc("/api/status", middleware.GzipMiddleware(handleStatus(sp))).Methods("GET")
	router.HandleFunc("/api/stats", middleware.GzipMiddleware(handleStats(sp))).Methods("GET")
	router.HandleFunc("/healthz", handleHealth()).Methods("GET")
}

// handleCreateLink implements get_or_create_stream_link for the ingestion
// layer: idempotent, the same file id always yields the same link.
func handleCreateLink(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tok, streamURL, err := sp.GetOrCreateStreamLink(req.FileID)
		if err != nil {
			if errors.Is(err, token.ErrInvalidFileID) {
				writeJSONError(w, http.StatusBadRequest, "invalid file_id")
				return
			}
			logger.Error("{api_handlers - handleCreateLink} Failed to create link: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to create stream link")
			return
		}

		writeJSON(w, http.StatusOK, CreateLinkResponse{
			Token:     tok,
			StreamURL: streamURL,
		})
	}
}

// handleGetLink returns the registered mapping for a token.
func handleGetLink(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := mux.Vars(r)["token"]
		if !token.Valid(tok) {
			writeJSONError(w, http.StatusBadRequest, "invalid token format")
			return
		}

		row, err := sp.Registry.Lookup(tok)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				writeJSONError(w, http.StatusNotFound, "token not registered")
				return
			}
			logger.Error("{api_handlers - handleGetLink} Lookup failed: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "lookup failed")
			return
		}

		writeJSON(w, http.StatusOK, LinkResponse{
			Token:     row.UniqueID,
			FileID:    row.ProviderFileID,
			CreatedAt: row.CreatedAt,
		})
	}
}

// handleStatus reports the active streaming sessions.
func handleStatus(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := sp.ActiveSessions()

		out := make([]SessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, SessionResponse{
				Token:      s.Token,
				RemoteAddr: s.RemoteAddr,
				Status:     s.Status,
				BytesSent:  utils.FormatBytes(s.BytesSent.Load()),
				Duration:   time.Since(s.StartedAt).Round(time.Second).String(),
			})
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// handleStats reports process and registry statistics.
func handleStats(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		dbStats := map[string]interface{}{}
		if sp.Registry != nil {
			if stats, err := sp.Registry.Stats(); err == nil {
				dbStats = stats
			}
		}

		writeJSON(w, http.StatusOK, StatsResponse{
			ActiveStreams:    len(sp.ActiveSessions()),
			Uptime:           time.Since(apiStartTime).Round(time.Second).String(),
			MemoryUsage:      utils.FormatBytes(int64(mem.Alloc)),
			WorkerThreads:    sp.Config.WorkerThreads,
			MaxStreams:       sp.Config.MaxConcurrentStreams,
			RegistryDatabase: dbStats,
		})
	}
}

// handleHealth is the liveness probe.
func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("{api_handlers - writeJSON} Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
