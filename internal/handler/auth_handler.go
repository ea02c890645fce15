package handler

import (
	"encoding/json"
	"net/http"

	"kivop-be/internal/container"
	"kivop-be/internal/domain"
	"kivop-be/internal/middleware"
	"kivop-be/pkg/errors"
)

// AuthHandler handles authentication related requests
type AuthHandler struct {
	container *container.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *container.Container) *AuthHandler {
	return &AuthHandler{
		container: container,
	}
}

// UserProfileResponse represents the user profile response
type UserProfileResponse struct {
	User    *domain.UserProfile `json:"user"`
	Success bool                `json:"success"`
}

// GetProfile handles GET /api/v1/me. Clients use it to learn which member
// their actions are recorded under.
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	user := middleware.UserFromContext(r.Context())
	if user == nil {
		logger.Error("User not found in context")
		errors.WriteJSON(w, errors.NewAuthenticationError("User not authenticated"), middleware.RequestIDFromContext(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(UserProfileResponse{User: user, Success: true}); err != nil {
		logger.WithError(err).Error("Failed to encode user profile response")
	}
}
