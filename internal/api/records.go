package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/studio"
	"github.com/starford/monteerly/internal/syncengine"
	"github.com/starford/monteerly/internal/transition"
)

// Handler holds project, brief and dashboard route handlers.
type Handler struct {
	svc *studio.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *studio.Service) *Handler {
	return &Handler{svc: svc}
}

// viewOptions reads ?status=a,b&sort=deadline_asc&limit=n.
func viewOptions(r *http.Request) syncengine.Options {
	q := r.URL.Query()
	opts := syncengine.Options{Sort: syncengine.ParseSortKey(q.Get("sort"))}
	if raw := q.Get("status"); raw != "" {
		var statuses []models.Status
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, models.Status(s))
			}
		}
		opts.Filter = syncengine.StatusFilter(statuses...)
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	return opts
}

func recordResponse(rec models.Record) RecordResponse {
	next := transition.LegalNext(rec.Kind, rec.Status)
	if next == nil {
		next = []models.Status{}
	}
	return RecordResponse{Record: rec, Next: next}
}

func listResponse(v syncengine.View) ListResponse {
	return ListResponse{Records: v.Visible, Aggregates: v.Aggregates}
}

// ListProjects handles GET /api/projects.
//
//	@Summary		List the caller's projects
//	@Tags			projects
//	@Produce		json
//	@Param			status	query		string	false	"Comma-separated statuses to show"
//	@Param			sort	query		string	false	"Sort key"	Enums(created_desc, deadline_asc, budget_desc)
//	@Param			limit	query		int		false	"Newest N only"
//	@Success		200		{object}	ListResponse
//	@Security		BearerAuth
//	@Router			/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.svc.ListProjects(r.Context(), identity.UserID, viewOptions(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(view))
}

// CreateProject handles POST /api/projects.
//
//	@Summary		Create a project
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProjectRequest	true	"Project"
//	@Success		201		{object}	RecordResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects [post]
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rec, err := h.svc.CreateProject(r.Context(), identity.UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordResponse(rec))
}

// GetProject handles GET /api/projects/{id}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.svc.GetProject(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// UpdateProject handles PUT /api/projects/{id}.
//
//	@Summary		Edit a project's title, description, budget and deadline
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Project id"
//	@Param			body	body		ProjectRequest	true	"Project"
//	@Success		200		{object}	RecordResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id} [put]
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rec, err := h.svc.UpdateProject(r.Context(), identity.UserID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// DeleteProject handles DELETE /api/projects/{id}.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteProject(r.Context(), identity.UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionProject handles POST /api/projects/{id}/status.
//
//	@Summary		Move a project to its next status
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Project id"
//	@Param			body	body		StatusRequest	true	"Target status"
//	@Success		200		{object}	RecordResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/status [post]
func (h *Handler) TransitionProject(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rec, err := h.svc.TransitionProject(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// ListBriefs handles GET /api/briefs.
func (h *Handler) ListBriefs(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.svc.ListBriefs(r.Context(), identity.UserID, viewOptions(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(view))
}

// CreateBrief handles POST /api/briefs.
func (h *Handler) CreateBrief(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req BriefRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rec, err := h.svc.CreateBrief(r.Context(), identity.UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordResponse(rec))
}

// GetBrief handles GET /api/briefs/{id}.
func (h *Handler) GetBrief(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.svc.GetBrief(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// TransitionBrief handles POST /api/briefs/{id}/status.
func (h *Handler) TransitionBrief(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	rec, err := h.svc.TransitionBrief(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// Dashboard handles GET /api/dashboard.
//
//	@Summary		Overview numbers and short lists
//	@Tags			dashboard
//	@Produce		json
//	@Success		200	{object}	studio.Dashboard
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	dash, err := h.svc.Dashboard(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
