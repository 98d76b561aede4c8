package routes

import (
	"github.com/go-chi/chi/v5"

	imageproxyhandlers "Medigate/internal/api/handlers/imageproxy"
)

// RegisterImageProxyRoutes registers the image gateway endpoints on the router.
//
// Routes:
//   - GET /imgProxy?url&w&q&format: proxied, transcoded image with immutable
//     caching headers and ETag/If-None-Match support
//   - POST /imgUpload?w&q&format&name&persist: transcode the raw request body,
//     optionally persisting it to object storage
func RegisterImageProxyRoutes(r chi.Router, handler *imageproxyhandlers.Handler) {
	r.Get("/imgProxy", handler.HandleProxy)
	r.Post("/imgUpload", handler.HandleUpload)
}
