package api

import (
	"database/sql"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/erazemk/buddybuy/internal/imaging"
	"github.com/erazemk/buddybuy/internal/store"
)

// MaxUploadSize bounds a single blob upload.
const MaxUploadSize = 10 << 20

// StorageHandler handles blob upload and public download endpoints.
type StorageHandler struct {
	DB *sql.DB
}

// cleanBlobPath rejects empty, absolute, and traversing paths.
func cleanBlobPath(p string) (string, bool) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", false
	}
	cleaned := path.Clean(p)
	if cleaned != p || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", false
	}
	return cleaned, true
}

// Upload handles PUT /api/storage/{bucket}/{path...}.
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	if r.PathValue("bucket") != ImageBucket {
		jsonError(w, http.StatusNotFound, "bucket not found")
		return
	}

	blobPath, ok := cleanBlobPath(r.PathValue("path"))
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if !strings.HasPrefix(blobPath, claims.UserID+"/") {
		jsonError(w, http.StatusForbidden, "uploads must be stored under your own folder")
		return
	}

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(contentType, "image/") {
		jsonError(w, http.StatusUnsupportedMediaType, "content type must be an image type")
		return
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if len(data) == 0 {
		jsonError(w, http.StatusBadRequest, "empty upload")
		return
	}

	if imaging.Normalizable[contentType] {
		result, err := imaging.Normalize(data)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		if result.MIME != contentType {
			jsonError(w, http.StatusBadRequest, "content does not match declared type "+contentType)
			return
		}
		data = result.Data
	}

	if err := store.PutBlob(r.Context(), h.DB, ImageBucket, blobPath, claims.UserID, contentType, data); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	slog.Info("blob stored", "user", claims.UserID, "path", blobPath, "bytes", len(data))
	jsonResponse(w, http.StatusOK, map[string]string{"key": ImageBucket + "/" + blobPath})
}

// Get handles GET /storage/{bucket}/{path...}. Blobs are public.
func (h *StorageHandler) Get(w http.ResponseWriter, r *http.Request) {
	blobPath, ok := cleanBlobPath(r.PathValue("path"))
	if r.PathValue("bucket") != ImageBucket || !ok {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}

	data, contentType, err := store.GetBlob(r.Context(), h.DB, ImageBucket, blobPath)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get blob")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
