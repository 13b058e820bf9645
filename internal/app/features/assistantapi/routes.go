// internal/app/features/assistantapi/routes.go
package assistantapi

import (
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/store/accesskeys"
	apilogstore "github.com/dalemusser/stratadrive/internal/app/store/apilog"
	"github.com/dalemusser/stratadrive/internal/app/system/apicors"
	"github.com/dalemusser/stratadrive/internal/app/system/apilog"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the assistant API router. The surface is read-only
// except for annotation writes. Failed requests are recorded to the
// api log when a store is provided.
func Routes(h *Handler, keys *accesskeys.Store, logs *apilogstore.Store, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(apicors.Middleware())
	r.Use(auth.RequireOwner(keys, logger))
	if logs != nil {
		r.Use(apilog.Middleware(apilog.Config{Store: logs, Logger: logger}))
	}

	r.Route("/entries/{id}", func(r chi.Router) {
		r.Get("/", h.GetEntry)
		r.Get("/children", h.Children)
		r.Put("/annotations", h.PutAnnotations)
	})

	r.Get("/search", h.Search)

	return r
}
