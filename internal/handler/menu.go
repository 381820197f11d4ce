package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/luca0405/beanstalker/internal/images"
	"github.com/luca0405/beanstalker/internal/model"
	"github.com/luca0405/beanstalker/internal/store"
)

// maxImageBytes caps menu image uploads.
const maxImageBytes = 5 << 20

type MenuHandler struct {
	menu   *store.MenuStore
	images *images.Store
	logger *slog.Logger
}

func NewMenuHandler(ms *store.MenuStore, is *images.Store, logger *slog.Logger) *MenuHandler {
	return &MenuHandler{menu: ms, images: is, logger: logger}
}

// List handles GET /api/menu
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.menu.List()
	if err != nil {
		h.logger.Error("list menu", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list menu")
		return
	}
	if items == nil {
		items = []model.MenuItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type menuItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Available   *bool  `json:"available"`
}

// Create handles POST /api/admin/menu
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" || req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "name and a positive price are required")
		return
	}

	item, err := h.menu.Create(req.Name, req.Description, req.Category, req.Price)
	if err != nil {
		h.logger.Error("create menu item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create menu item")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// Update handles PUT /api/admin/menu/{id}
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	item, err := h.menu.Update(id, req.Name, req.Description, req.Category, req.Price, available)
	if err != nil {
		h.logger.Error("update menu item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update menu item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "menu item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/admin/menu/{id}
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.menu.GetByID(id)
	if err != nil {
		h.logger.Error("get menu item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete menu item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "menu item not found")
		return
	}

	if item.ImageKey != "" {
		if err := h.images.Delete(r.Context(), item.ImageKey); err != nil {
			h.logger.Warn("delete menu image", "key", item.ImageKey, "error", err)
		}
	}

	if err := h.menu.Delete(id); err != nil {
		h.logger.Error("delete menu item", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete menu item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /api/admin/menu/{id}/image
func (h *MenuHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if !h.images.Configured() {
		writeError(w, http.StatusServiceUnavailable, "image storage not configured")
		return
	}

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.menu.GetByID(id)
	if err != nil || item == nil {
		writeError(w, http.StatusNotFound, "menu item not found")
		return
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	key, err := h.images.Upload(r.Context(), header.Filename, data)
	if err != nil {
		h.logger.Error("upload menu image", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	// Replace any previous image after the new one is safely stored.
	if item.ImageKey != "" {
		if err := h.images.Delete(r.Context(), item.ImageKey); err != nil {
			h.logger.Warn("delete old menu image", "key", item.ImageKey, "error", err)
		}
	}

	if err := h.menu.SetImageKey(id, key); err != nil {
		h.logger.Error("set image key", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save image reference")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"image_key": key})
}

// GetImage handles GET /api/menu/{id}/image
func (h *MenuHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.menu.GetByID(id)
	if err != nil || item == nil || item.ImageKey == "" {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	body, contentType, err := h.images.Get(r.Context(), item.ImageKey)
	if err != nil {
		h.logger.Error("get menu image", "key", item.ImageKey, "error", err)
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	io.Copy(w, body)
}
