// Package indexes reconciles the database's index sets at startup.
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureEntries(ctx, db); err != nil {
		problems = append(problems, "entries: "+err.Error())
	}
	if err := ensureAccessKeys(ctx, db); err != nil {
		problems = append(problems, "access_keys: "+err.Error())
	}
	if err := ensureAPILog(ctx, db); err != nil {
		problems = append(problems, "api_log: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureEntries(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("entries")

	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// The sibling-name rule: at most one live entry per
		// (owner, parent, kind, name). Partial so trashed entries free
		// their name slot, and so concurrent create/rename/restore
		// races lose cleanly at the storage layer.
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "parent_id", Value: 1},
				{Key: "kind", Value: 1},
				{Key: "name", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_live_sibling_name").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "is_deleted", Value: false}}),
		},
		// Child listings.
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "parent_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "kind", Value: -1},
				{Key: "name_ci", Value: 1},
			},
			Options: options.Index().SetName("children_listing"),
		},
		// Name search.
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "name_ci", Value: 1},
			},
			Options: options.Index().SetName("name_search"),
		},
		// Recent files view.
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "kind", Value: 1},
				{Key: "is_deleted", Value: 1},
				{Key: "last_accessed_at", Value: -1},
			},
			Options: options.Index().SetName("recent_files"),
		},
		// Starred view.
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "is_starred", Value: 1},
				{Key: "is_deleted", Value: 1},
			},
			Options: options.Index().SetName("starred"),
		},
		// Trash view and the retention sweep.
		{
			Keys: bson.D{
				{Key: "is_deleted", Value: 1},
				{Key: "deleted_at", Value: 1},
			},
			Options: options.Index().SetName("trash_retention"),
		},
	})
}

func ensureAccessKeys(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("access_keys")

	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key_prefix", Value: 1}},
			Options: options.Index().SetName("key_prefix"),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetName("owner"),
		},
	})
}

func ensureAPILog(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("api_log")

	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Failure records expire after 30 days.
		{
			Keys: bson.D{{Key: "started_at", Value: 1}},
			Options: options.Index().
				SetName("started_at_ttl").
				SetExpireAfterSeconds(30 * 24 * 3600),
		},
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "started_at", Value: -1},
			},
			Options: options.Index().SetName("owner_recent"),
		},
	})
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // E11000 duplicate key error index
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name (or options differ).
func isOptionsConflictErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "IndexOptionsConflict")
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			if m.Options.Unique != nil {
				desiredUnique = m.Options.Unique
			}
		}
		desiredSig := keySig(m.Keys.(bson.D))

		start := time.Now()

		// 1) Load existing indexes
		existing := map[string]existingIndex{} // sig -> index
		cur, err := coll.Indexes().List(ctx)
		if err == nil {
			for cur.Next(ctx) {
				var idx existingIndex
				if err := cur.Decode(&idx); err != nil {
					zap.L().Warn("failed to decode existing index",
						zap.String("collection", coll.Name()),
						zap.Error(err))
					continue
				}
				existing[keySig(idx.Key)] = idx
			}
			cur.Close(ctx)
		}

		if ex, ok := existing[desiredSig]; ok {
			// Same key pattern exists already.
			if sameBoolPtr(desiredUnique, ex.Unique) {
				continue
			}

			// Options mismatch (e.g., upgrading to unique). Drop & recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
			if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
				if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
					errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), desiredName))
				} else {
					errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
				}
				continue
			}
			zap.L().Info("index dropped and recreated",
				zap.String("collection", coll.Name()),
				zap.String("name", desiredName),
				zap.String("keys", desiredSig),
				zap.String("took", time.Since(start).String()))
			continue
		}

		// 2) No existing index with the same keys: create it.
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isOptionsConflictErr(err) {
				zap.L().Warn("index ensure failed (options conflict)",
					zap.String("collection", coll.Name()),
					zap.String("name", desiredName),
					zap.String("keys", desiredSig),
					zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
				continue
			}

			zap.L().Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", desiredName),
				zap.String("keys", desiredSig),
				zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			continue
		}

		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
