package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lostboard/apiserver/internal/storage"
	"go.uber.org/zap"
)

// ObjectReader opens stored objects by key.
type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// UploadsHandler serves uploaded images from object storage.
type UploadsHandler struct {
	objects ObjectReader
	logger  *zap.Logger
}

func NewUploadsHandler(objects ObjectReader, logger *zap.Logger) *UploadsHandler {
	return &UploadsHandler{objects: objects, logger: logger}
}

// Serve streams the object named by the wildcard path segment.
func (h *UploadsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	body, err := h.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("open upload failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", storage.CacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream upload interrupted", zap.String("key", key), zap.Error(err))
	}
}
