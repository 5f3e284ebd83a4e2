package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/monteerly/internal/storage"
	"github.com/starford/monteerly/internal/studio"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AttachmentHandler serves and accepts project files.
type AttachmentHandler struct {
	svc   *studio.Service
	files storage.Provider
}

// NewAttachmentHandler creates a handler storing files in files. Ownership
// is checked through svc before every operation.
func NewAttachmentHandler(svc *studio.Service, files storage.Provider) *AttachmentHandler {
	return &AttachmentHandler{svc: svc, files: files}
}

// project resolves {id} to a project the caller owns.
func (h *AttachmentHandler) project(r *http.Request) (string, error) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		return "", err
	}
	rec, err := h.svc.GetProject(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// List handles GET /api/projects/{id}/attachments.
func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := h.project(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	files, err := h.files.List(projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": files})
}

// Upload handles POST /api/projects/{id}/attachments (multipart/form-data, field "file").
//
//	@Summary		Upload a project attachment
//	@Tags			attachments
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Project id"
//	@Param			file	formData	file	true	"File"
//	@Success		201		{object}	storage.File
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/attachments [post]
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID, err := h.project(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	stored, err := h.files.Write(projectID, header.Filename, content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// Download handles GET /api/projects/{id}/attachments/{name}.
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	projectID, err := h.project(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	data, err := h.files.Read(projectID, name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

// Delete handles DELETE /api/projects/{id}/attachments/{name}.
func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, err := h.project(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.files.Delete(projectID, chi.URLParam(r, "name")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
