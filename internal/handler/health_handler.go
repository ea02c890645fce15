package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"kivop-be/internal/container"
)

// HealthChecker is anything that can report its own health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
	db        HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container, db HealthChecker) *HealthHandler {
	return &HealthHandler{
		container: container,
		db:        db,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health. The database is required, the cache is not.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "kivop-posters",
		Checks:    map[string]string{},
	}

	if h.db != nil {
		if err := h.db.Health(ctx); err != nil {
			logger.WithError(err).Error("Database health check failed")
			response.Checks["database"] = "down"
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			response.Checks["database"] = "up"
		}
	}

	switch {
	case !h.container.HasRedis():
		response.Checks["cache"] = "disabled"
	case h.container.GetCacheService().HealthCheck(ctx) != nil:
		response.Checks["cache"] = "down"
		if response.Status == "healthy" {
			response.Status = "degraded"
		}
	default:
		response.Checks["cache"] = "up"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode health check response")
	}
}
