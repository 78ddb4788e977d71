// internal/app/features/donors/routes.go
package donors

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter mounted under /donors.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/nearby", h.ServeNearby)
	return r
}
