package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lostboard/apiserver/internal/services"
	"go.uber.org/zap"
)

const (
	formFieldName        = "name"
	formFieldDescription = "description"
	formFieldLocation    = "location"
	formFieldType        = "type"
	formFieldUserID      = "user_id"
	formFieldImage       = "image"
)

// ItemHandler provides HTTP handlers for lost and found reports.
type ItemHandler struct {
	itemService *services.ItemService
	logger      *zap.Logger
}

func NewItemHandler(itemService *services.ItemService, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{itemService: itemService, logger: logger}
}

// ItemRouter registers report routes on the given router. Reads are public;
// creating and deleting require authMiddleware.
func ItemRouter(r chi.Router, itemService *services.ItemService, authMiddleware func(http.Handler) http.Handler, logger *zap.Logger) {
	handler := NewItemHandler(itemService, logger)

	r.Get("/", handler.ListItems)
	r.With(authMiddleware).Post("/", handler.CreateItem)
	r.Route("/{itemID}", func(r chi.Router) {
		r.Get("/", handler.GetItem)
		r.With(authMiddleware).Delete("/", handler.DeleteItem)
	})
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.itemService.List(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.itemService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// CreateItem stores a report owned by the authenticated user. A submitted
// user_id must name that same user.
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		unauthorized(w)
		return
	}

	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if raw, ok := formValue(r, formFieldUserID); ok && strings.TrimSpace(raw) != "" {
		claimed, err := parseID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		if claimed != principal.ID {
			writeError(w, http.StatusForbidden, "user_id does not match the authenticated user")
			return
		}
	}

	image, err := formImage(r, formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.itemService.Create(r.Context(), services.CreateItemInput{
		Name:        r.PostFormValue(formFieldName),
		Description: r.PostFormValue(formFieldDescription),
		Location:    r.PostFormValue(formFieldLocation),
		Type:        r.PostFormValue(formFieldType),
		UserID:      principal.ID,
		Image:       image,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Item added successfully", ID: created.ID})
}

func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		unauthorized(w)
		return
	}

	id, err := parseID(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := h.itemService.Delete(r.Context(), id, principal.ID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Item deleted successfully"})
}
