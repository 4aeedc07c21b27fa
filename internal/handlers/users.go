package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lostboard/apiserver/internal/services"
	"go.uber.org/zap"
)

const (
	formFieldUsername      = "username"
	formFieldEmail         = "email"
	formFieldContactNumber = "contact_number"
	formFieldProfilePic    = "profile_pic"
)

// UserHandler serves the authenticated user's own profile.
type UserHandler struct {
	profileService *services.ProfileService
	logger         *zap.Logger
}

func NewUserHandler(profileService *services.ProfileService, logger *zap.Logger) *UserHandler {
	return &UserHandler{profileService: profileService, logger: logger}
}

// UserRouter registers profile routes behind authMiddleware.
func UserRouter(r chi.Router, profileService *services.ProfileService, authMiddleware func(http.Handler) http.Handler, logger *zap.Logger) {
	handler := NewUserHandler(profileService, logger)

	r.With(authMiddleware).Get("/me", handler.Me)
	r.With(authMiddleware).Put("/me", handler.UpdateMe)
}

// Me returns the current authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		unauthorized(w)
		return
	}

	user, err := h.profileService.GetSelf(r.Context(), principal.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe edits the current user's profile. Omitting contact_number keeps
// the stored number; sending it empty clears it.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		unauthorized(w)
		return
	}

	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update := services.ProfileUpdate{
		Username: r.PostFormValue(formFieldUsername),
		Email:    r.PostFormValue(formFieldEmail),
	}
	if contact, ok := formValue(r, formFieldContactNumber); ok {
		update.ContactNumber = &contact
	}
	update.ProfilePic, err = formImage(r, formFieldProfilePic)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.profileService.UpdateSelf(r.Context(), principal.ID, update)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
