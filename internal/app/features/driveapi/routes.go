// internal/app/features/driveapi/routes.go
package driveapi

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

// Routes returns the drive API router. Every route requires a valid
// bearer access key. Failed requests are recorded to the api log when
// a store is provided.
func Routes(h *Handler, keys *accesskeys.Store, logs *apilogstore.Store, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(apicors.Middleware())
	r.Use(auth.RequireOwner(keys, logger))
	if logs != nil {
		r.Use(apilog.Middleware(apilog.Config{Store: logs, Logger: logger}))
	}

	r.Route("/folders", func(r chi.Router) {
		r.Post("/", h.CreateFolder)
		r.Get("/{id}/contents", h.FolderContents)
		r.Get("/{id}/path", h.FolderPath)
		r.Get("/{id}/size", h.FolderSize)
		r.Patch("/{id}/rename", h.Rename)
		r.Patch("/{id}/move", h.Move)
		r.Delete("/{id}", h.DeleteFolder)
	})

	r.Route("/files", func(r chi.Router) {
		r.Post("/", h.UploadFile)
		r.Get("/", h.ListFiles)
		r.Get("/{id}/download", h.DownloadFile)
		r.Patch("/{id}/rename", h.Rename)
		r.Patch("/{id}/move", h.Move)
		r.Delete("/{id}", h.DeleteFile)
	})

	r.Route("/entries/{id}", func(r chi.Router) {
		r.Patch("/star", h.ToggleStar)
		r.Post("/trash", h.Trash)
		r.Post("/restore", h.Restore)
		r.Delete("/permanent", h.Purge)
	})

	r.Get("/search", h.Search)
	r.Get("/recent", h.Recent)
	r.Get("/starred", h.Starred)

	r.Get("/trash", h.Trashed)
	r.Delete("/trash", h.EmptyTrash)

	r.Get("/storage/stats", h.StorageStats)

	return r
}
