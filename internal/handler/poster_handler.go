package handler

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"

	"kivop-be/internal/domain"
	"kivop-be/internal/middleware"
	"kivop-be/internal/service"
	"kivop-be/pkg/errors"
	"kivop-be/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies; evidence photos arrive base64 encoded
const maxBodyBytes = 12 << 20

// PosterHandler serves poster campaigns and position actions
type PosterHandler struct {
	posters *service.PosterService
	logger  *logger.Logger
}

func NewPosterHandler(posters *service.PosterService, logger *logger.Logger) *PosterHandler {
	return &PosterHandler{
		posters: posters,
		logger:  logger,
	}
}

// RegisterRoutes mounts the poster routes on r
func (h *PosterHandler) RegisterRoutes(r chi.Router) {
	r.Route("/posters", func(r chi.Router) {
		r.Get("/", h.ListPosters)
		r.Post("/", h.CreatePoster)

		r.Route("/positions/{positionId}", func(r chi.Router) {
			r.Get("/", h.GetPosition)
			r.Post("/hang", h.Hang)
			r.Post("/take-down", h.TakeDown)
			r.Post("/report-damage", h.ReportDamage)
		})

		r.Route("/{posterId}", func(r chi.Router) {
			r.Get("/", h.GetPoster)
			r.Get("/positions", h.ListPositions)
			r.Get("/summary", h.GetSummary)
		})
	})
}

// ListPosters handles GET /api/v1/posters?view=current|archived
func (h *PosterHandler) ListPosters(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.posters.ListOverviews(r.Context(), r.URL.Query().Get("view"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCached(w, r, overviews)
}

// CreatePoster handles POST /api/v1/posters
func (h *PosterHandler) CreatePoster(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePosterRequest
	if !h.decode(w, r, &req) {
		return
	}

	detail, err := h.posters.CreatePoster(r.Context(), &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, detail)
}

// GetPoster handles GET /api/v1/posters/{posterId}
func (h *PosterHandler) GetPoster(w http.ResponseWriter, r *http.Request) {
	detail, err := h.posters.GetPoster(r.Context(), chi.URLParam(r, "posterId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, detail)
}

// ListPositions handles GET /api/v1/posters/{posterId}/positions
func (h *PosterHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.posters.ListPositions(r.Context(), chi.URLParam(r, "posterId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, positions)
}

// GetSummary handles GET /api/v1/posters/{posterId}/summary
func (h *PosterHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.posters.GetSummary(r.Context(), chi.URLParam(r, "posterId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCached(w, r, summary)
}

// GetPosition handles GET /api/v1/posters/positions/{positionId}
func (h *PosterHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := h.posters.GetPosition(r.Context(), chi.URLParam(r, "positionId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, position)
}

// Hang handles POST /api/v1/posters/positions/{positionId}/hang
func (h *PosterHandler) Hang(w http.ResponseWriter, r *http.Request) {
	var req domain.HangRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, err := h.posters.Hang(r.Context(), chi.URLParam(r, "positionId"), h.actor(r), &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, position)
}

// TakeDown handles POST /api/v1/posters/positions/{positionId}/take-down
func (h *PosterHandler) TakeDown(w http.ResponseWriter, r *http.Request) {
	var req domain.EvidenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, err := h.posters.TakeDown(r.Context(), chi.URLParam(r, "positionId"), h.actor(r), &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, position)
}

// ReportDamage handles POST /api/v1/posters/positions/{positionId}/report-damage
func (h *PosterHandler) ReportDamage(w http.ResponseWriter, r *http.Request) {
	var req domain.EvidenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	position, err := h.posters.ReportDamage(r.Context(), chi.URLParam(r, "positionId"), h.actor(r), &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, position)
}

// actor is the authenticated member performing an action
func (h *PosterHandler) actor(r *http.Request) string {
	if user := middleware.UserFromContext(r.Context()); user != nil {
		return user.Sub
	}
	return ""
}

func (h *PosterHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, r, errors.NewValidationError("Invalid request body", map[string]interface{}{
			"reason": err.Error(),
		}))
		return false
	}
	return true
}

// respondCached answers with 304 when the client already has the payload
func (h *PosterHandler) respondCached(w http.ResponseWriter, r *http.Request, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		h.respondError(w, r, errors.NewInternalError("Failed to encode response", err))
		return
	}

	etag := fmt.Sprintf(`"%x"`, md5.Sum(body))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func (h *PosterHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *PosterHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := errors.AsAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	} else {
		h.logger.WithError(err).WithField("path", r.URL.Path).Debug("Request rejected")
	}
	errors.WriteJSON(w, appErr, middleware.RequestIDFromContext(r.Context()))
}
