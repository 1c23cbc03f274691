package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/swipeshot/internal/screenshot"
	"github.com/ayusman/swipeshot/internal/store"
)

// Gallery is the capture collection served by CapturesHandler.
type Gallery interface {
	Capture(origin store.Origin) (*store.Capture, error)
	Captures() ([]*store.Capture, error)
	CaptureByID(id string) (*store.Capture, error)
	DeleteCapture(id string) error
	ClearCaptures() (int64, error)
	Export(ctx context.Context, ids ...string) ([]string, error)
}

// CapturesHandler handles HTTP requests for capture resources.
type CapturesHandler struct {
	gallery Gallery
	logger  *zap.Logger
}

// NewCapturesHandler creates a new CapturesHandler.
func NewCapturesHandler(g Gallery, logger *zap.Logger) *CapturesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapturesHandler{gallery: g, logger: logger}
}

// ServeHTTP routes /api/captures, /api/captures/export and /api/captures/{id}.
func (h *CapturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/captures")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		case http.MethodDelete:
			h.clear(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	case "export":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.export(w, r)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type listCapturesResponse struct {
	Captures []*store.Capture `json:"captures"`
}

type clearResponse struct {
	Removed int64 `json:"removed"`
}

type exportRequest struct {
	IDs []string `json:"ids"`
}

type exportResponse struct {
	Paths []string `json:"paths"`
}

// list handles GET /api/captures and returns metadata, most recent first.
func (h *CapturesHandler) list(w http.ResponseWriter, r *http.Request) {
	captures, err := h.gallery.Captures()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list captures")
		return
	}
	if captures == nil {
		captures = []*store.Capture{}
	}
	writeJSON(w, http.StatusOK, listCapturesResponse{Captures: captures})
}

// create handles POST /api/captures and takes a manual capture.
func (h *CapturesHandler) create(w http.ResponseWriter, r *http.Request) {
	c, err := h.gallery.Capture(store.OriginManual)
	if err != nil {
		if errors.Is(err, screenshot.ErrCapture) {
			writeError(w, http.StatusConflict, "Nothing to capture yet")
			return
		}
		h.logger.Error("manual capture failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Capture failed")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// clear handles DELETE /api/captures and empties the gallery.
func (h *CapturesHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.gallery.ClearCaptures()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear captures")
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Removed: n})
}

// get handles GET /api/captures/{id} and returns the PNG. With ?download=1
// the browser is asked to save it under its capture filename.
func (h *CapturesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.gallery.CaptureByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get capture")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(c.Data)))
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", screenshot.SanitizeFilename(c.Filename)))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(c.Data)
}

// delete handles DELETE /api/captures/{id}.
func (h *CapturesHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.gallery.DeleteCapture(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete capture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// export handles POST /api/captures/export. An empty body or id list exports
// the whole gallery.
func (h *CapturesHandler) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	paths, err := h.gallery.Export(r.Context(), req.IDs...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		h.logger.Error("export failed", zap.Error(err), zap.Int("written", len(paths)))
		writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, exportResponse{Paths: paths})
}
