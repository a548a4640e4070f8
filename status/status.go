// Package status serves a read-only HTTP view of a running agent.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/run"
)

const defaultTurnLimit = 50

// Source reports the live state of a run. *agent.Orchestrator satisfies it.
type Source interface {
	Status() agent.Status
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// Response is the body of GET /status.
type Response struct {
	RunID   uuid.UUID `json:"run_id"`
	Dir     string    `json:"dir"`
	Version string    `json:"version,omitempty"`
	agent.Status
}

// TurnsResponse is the body of GET /turns.
type TurnsResponse struct {
	Items []*run.Turn `json:"items"`
	Total int         `json:"total"`
}

// Handler answers the status routes.
type Handler struct {
	source  Source
	turns   run.TurnStore
	runID   uuid.UUID
	dir     string
	version string
	logger  logger.Logger
}

// NewHandler creates a status handler. turns may be nil, in which case
// /turns answers 404.
func NewHandler(source Source, turns run.TurnStore, runID uuid.UUID, dir, version string, log logger.Logger) *Handler {
	return &Handler{
		source:  source,
		turns:   turns,
		runID:   runID,
		dir:     dir,
		version: version,
		logger:  log,
	}
}

// Router wires the handler into a gorilla/mux router.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.logRequests)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	router.HandleFunc("/turns", h.Turns).Methods(http.MethodGet)
	return router
}

// Health handles health check requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Status reports the orchestrator state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Response{
		RunID:   h.runID,
		Dir:     h.dir,
		Version: h.version,
		Status:  h.source.Status(),
	})
}

// Turns lists the recorded turns of the run, oldest first. The optional
// limit query parameter keeps only the most recent turns.
func (h *Handler) Turns(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		respondError(w, http.StatusNotFound, "turn recording is disabled")
		return
	}

	limit := defaultTurnLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	turns, err := h.turns.ListByRun(r.Context(), h.runID)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list turns", map[string]interface{}{
			"error":  err.Error(),
			"run_id": h.runID.String(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list turns")
		return
	}

	total := len(turns)
	if total > limit {
		turns = turns[total-limit:]
	}
	if turns == nil {
		turns = []*run.Turn{}
	}
	respondJSON(w, http.StatusOK, TurnsResponse{Items: turns, Total: total})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug(r.Context(), "status request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "status server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info(ctx, "status server stopped", nil)
	return nil
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
