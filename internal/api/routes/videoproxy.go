package routes

import (
	"github.com/go-chi/chi/v5"

	videoproxyhandlers "Medigate/internal/api/handlers/videoproxy"
)

// RegisterVideoProxyRoutes registers the video gateway endpoint on the router.
//
// Route: GET /videoProxy?url
//
// HLS manifests are rewritten so segment requests come back through this
// endpoint; all other media is streamed through with Range passthrough.
func RegisterVideoProxyRoutes(r chi.Router, handler *videoproxyhandlers.Handler) {
	r.Get("/videoProxy", handler.HandleVideo)
}
