// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratadrive/internal/app/store/accesskeys"
	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are
// complete, but before the HTTP handler is built and requests are
// served.
//
// Returning a non-nil error will abort startup and prevent the server
// from starting. The context will be cancelled if the process is asked
// to shut down while Startup is running.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if appCfg.SeedOwnerID != "" {
		if err := ensureSeedAccessKey(ctx, deps, appCfg, logger); err != nil {
			logger.Error("failed to seed access key", zap.Error(err))
			return err
		}
	}

	startTaskRunner(deps, appCfg, logger)

	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(deps DBDeps, appCfg AppConfig, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	if appCfg.TrashRetention > 0 {
		taskRunner.Register(tasks.TrashRetentionJob(deps.Entries, deps.Tree, logger, appCfg.TrashRetention))
	}

	taskRunner.Start()
}

// ensureSeedAccessKey makes sure the configured owner has at least one
// active access key. When a key is issued here, the full value is
// logged once; it cannot be recovered later.
func ensureSeedAccessKey(ctx context.Context, deps DBDeps, appCfg AppConfig, logger *zap.Logger) error {
	ownerID, err := primitive.ObjectIDFromHex(appCfg.SeedOwnerID)
	if err != nil {
		return err
	}

	existing, err := deps.AccessKeys.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for i := range existing {
		if existing[i].Status == accesskeys.StatusActive {
			logger.Debug("seed owner already has an active access key",
				zap.String("owner_id", ownerID.Hex()))
			return nil
		}
	}

	issued, err := deps.AccessKeys.Issue(ctx, ownerID, appCfg.SeedKeyLabel)
	if err != nil {
		return err
	}

	logger.Info("issued seed access key (shown once, store it now)",
		zap.String("owner_id", ownerID.Hex()),
		zap.String("access_key", issued.FullKey))
	return nil
}
