// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	assistantapifeature "github.com/dalemusser/stratadrive/internal/app/features/assistantapi"
	driveapifeature "github.com/dalemusser/stratadrive/internal/app/features/driveapi"
	healthfeature "github.com/dalemusser/stratadrive/internal/app/features/health"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this
// WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and any Startup hooks have completed. The service is API-only: every
// surface except health speaks JSON behind bearer access-key auth, so
// there is no session or CSRF layer here.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	// Global middleware. CORS must be early in the chain to handle
	// preflight requests.
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Health and Kubernetes probes, unauthenticated.
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	// Drive API: folders, files, trash, search, stats. Failed requests
	// are recorded to the api log for later diagnosis.
	driveHandler := driveapifeature.NewHandler(deps.Tree, deps.Entries, deps.Blobs, logger)
	r.Mount("/api/drive", driveapifeature.Routes(driveHandler, deps.AccessKeys, deps.APILog, logger))

	// Assistant API: read-only tree access plus annotation writes.
	assistantHandler := assistantapifeature.NewHandler(deps.Tree, deps.Entries, logger)
	r.Mount("/api/assistant", assistantapifeature.Routes(assistantHandler, deps.AccessKeys, deps.APILog, logger))

	return r, nil
}
