package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/store"
)

// ItemsHandler handles item CRUD endpoints.
type ItemsHandler struct {
	DB *sql.DB
}

// validateFields checks the fields shared by create and update requests.
func validateFields(title string, rating int) string {
	if strings.TrimSpace(title) == "" {
		return "title required"
	}
	if !model.ValidRating(rating) {
		return "rating must be between 0 and 3"
	}
	return ""
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.UserID
	}
	if userID != claims.UserID {
		jsonError(w, http.StatusForbidden, "cannot list items of another user")
		return
	}

	items, err := store.ListItems(r.Context(), h.DB, userID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.RemoteItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req model.RemoteItem
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateFields(req.Title, req.Rating); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}
	if req.UserID != "" && req.UserID != claims.UserID {
		jsonError(w, http.StatusForbidden, "cannot create items for another user")
		return
	}
	req.UserID = claims.UserID

	item, err := store.CreateItem(r.Context(), h.DB, req)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	item, err := store.GetItem(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil || item.UserID != claims.UserID {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Update handles PATCH /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id := r.PathValue("id")

	var req model.RemotePatch
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateFields(req.Title, req.Rating); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	found, err := store.UpdateItem(r.Context(), h.DB, claims.UserID, id, req)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}
	if !found {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}. Deleting an already deleted item of
// the caller succeeds.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	found, err := store.DeleteItem(r.Context(), h.DB, claims.UserID, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	if !found {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}
