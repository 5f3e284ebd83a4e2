package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/starford/monteerly/internal/storage"
	"github.com/starford/monteerly/internal/studio"
	"github.com/starford/monteerly/internal/syncengine"
)

// NewRouter creates a chi router with all API routes mounted.
// live backs the SSE streams. files may be nil, which leaves the
// attachment routes unmounted.
func NewRouter(sessions Sessions, svc *studio.Service, live syncengine.Subscriber, files storage.Provider, logger *slog.Logger) chi.Router {
	auth := NewAuthHandler(sessions)
	h := NewHandler(svc)
	events := NewEventsHandler(live, logger)

	r := chi.NewRouter()
	r.Use(StripAccessToken)

	// Public auth routes.
	r.Post("/auth/signup", auth.SignUp)
	r.Post("/auth/signin", auth.SignIn)
	r.Get("/auth/federated", auth.Federated)
	r.Get("/auth/federated/callback", auth.FederatedCallback)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(sessions))

		r.Post("/auth/signout", auth.SignOut)
		r.Get("/session", auth.Session)
		r.Get("/dashboard", h.Dashboard)

		// Projects.
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Put("/projects/{id}", h.UpdateProject)
		r.Delete("/projects/{id}", h.DeleteProject)
		r.Post("/projects/{id}/status", h.TransitionProject)

		if files != nil {
			ah := NewAttachmentHandler(svc, files)
			r.Get("/projects/{id}/attachments", ah.List)
			r.Post("/projects/{id}/attachments", ah.Upload)
			r.Get("/projects/{id}/attachments/{name}", ah.Download)
			r.Delete("/projects/{id}/attachments/{name}", ah.Delete)
		}

		// Briefs.
		r.Get("/briefs", h.ListBriefs)
		r.Post("/briefs", h.CreateBrief)
		r.Get("/briefs/{id}", h.GetBrief)
		r.Post("/briefs/{id}/status", h.TransitionBrief)
	})

	// Event streams also accept the token as a query parameter.
	r.Group(func(r chi.Router) {
		r.Use(StreamAuthMiddleware(sessions))

		r.Get("/projects/events", events.Projects)
		r.Get("/briefs/events", events.Briefs)
	})

	return r
}
