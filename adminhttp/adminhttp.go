// Package adminhttp serves the coordinator's side-channel HTTP
// surface — /health and /version — used by load balancers and
// operators, separate from the render-farm protocol's TCP listener.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"renderfarm/jobstore"
	"renderfarm/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// HealthResponse is the /health payload shape.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	ActiveJobs int    `json:"active_jobs"`
	GoVersion  string `json:"go_version"`
}

// VersionResponse is the /version payload shape.
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
}

// Handler serves /health and /version, backed by a job store so health
// can report the number of jobs still in flight.
type Handler struct {
	store     *jobstore.Store
	startTime time.Time
}

// NewHandler returns a Handler whose uptime is measured from now.
func NewHandler(store *jobstore.Store) *Handler {
	return &Handler{store: store, startTime: time.Now()}
}

// Mux returns an http.ServeMux with /health and /version registered.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/version", h.version)
	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	active, err := h.store.ListActive()
	if err != nil {
		logger.Errorf("adminhttp: list active jobs: %v", err)
	}

	resp := HealthResponse{
		Status:     "healthy",
		Uptime:     time.Since(h.startTime).String(),
		ActiveJobs: len(active),
		GoVersion:  runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Errorf("adminhttp: encode health response: %v", err)
	}
}

func (h *Handler) version(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := VersionResponse{
		Version:   version,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		GitCommit: gitCommit,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Errorf("adminhttp: encode version response: %v", err)
	}
}
