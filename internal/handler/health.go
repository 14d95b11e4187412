package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves / and /health.
type HealthHandler struct {
	db     Pinger
	cache  Pinger // nil when no cache is configured
	logger *slog.Logger
}

func NewHealthHandler(db, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, logger: logger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// HandleRoot: GET /
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Welcome to the contacts API"})
}

// HandleHealth: GET /health. The database decides the status code; a
// broken cache only degrades the report since requests still resolve.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Database: "ok", Cache: "disabled"}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "health check: database", slog.String("error", err.Error()))
		res.Status = "unavailable"
		res.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		res.Cache = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check: cache", slog.String("error", err.Error()))
			res.Cache = "unavailable"
			if status == http.StatusOK {
				res.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, res)
}
