package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Rule table.
	r.Get("/rules", h.ListRules)
	r.Put("/rules", h.ReplaceRules)
	r.Post("/rules", h.AddRule)
	r.Put("/rules/{index}", h.UpdateRule)
	r.Delete("/rules/{index}", h.DeleteRule)

	// Folder suggestions for the rule editor.
	r.Get("/folders", h.SuggestFolders)

	// Manual retrigger.
	r.Post("/sort/*", h.SortNote)

	// Run history.
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)

	// Stored images.
	r.Get("/assets/*", h.ServeAsset)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
