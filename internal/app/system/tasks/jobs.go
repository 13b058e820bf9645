// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/store/entry"
	"github.com/dalemusser/stratadrive/internal/app/tree"
	"go.uber.org/zap"
)

// TrashRetentionJob creates a job that permanently removes entries that
// have been sitting in the trash longer than the retention window.
// Purging goes through the tree manager so subtrees and blobs are
// released the same way an explicit purge releases them.
func TrashRetentionJob(entries *entry.Store, mgr *tree.Manager, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "trash-retention",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().Add(-retention)

			expired, err := entries.ListTrashedBefore(ctx, cutoff, 0)
			if err != nil {
				return err
			}

			var purged, blobFailures int
			for i := range expired {
				res, err := mgr.PurgeOne(ctx, expired[i].OwnerID, expired[i].ID)
				if err != nil {
					// Already gone is fine; anything else is logged
					// and the sweep moves on.
					if errors.Is(err, tree.ErrNotFound) {
						continue
					}
					logger.Warn("trash retention purge failed",
						zap.String("entry_id", expired[i].ID.Hex()),
						zap.Error(err))
					continue
				}
				purged += res.Purged
				blobFailures += res.BlobFailures
			}

			if purged > 0 || blobFailures > 0 {
				logger.Info("trash retention sweep completed",
					zap.Int("expired_items", len(expired)),
					zap.Int("purged", purged),
					zap.Int("blob_failures", blobFailures),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}
