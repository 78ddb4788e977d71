// internal/app/features/requests/routes.go
package requests

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter mounted under /requests.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeSubmit)
	r.Post("/emergency", h.ServeSubmitEmergency)
	r.Get("/", h.ServeList)
	r.Get("/nearby", h.ServeNearby)
	r.Get("/{id}", h.ServeGet)
	r.Post("/{id}/respond", h.ServeRespond)
	r.Post("/{id}/cancel", h.ServeCancel)
	return r
}
