// Package entry provides storage for drive entries (files and folders).
package entry

import (
	"context"
	"regexp"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the entries collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new entry store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("entries"),
	}
}

// Collection exposes the underlying collection for index management.
func (s *Store) Collection() *mongo.Collection {
	return s.c
}

// CreateInput contains the input for creating an entry.
type CreateInput struct {
	OwnerID    primitive.ObjectID
	Kind       models.EntryKind
	Name       string
	ParentID   *primitive.ObjectID
	Path       string
	Size       int64
	MimeType   string
	StorageKey string
}

// Create inserts a new live entry. A duplicate-key error from the
// sibling-name unique index surfaces to the caller unchanged so it can
// be mapped to a conflict.
func (s *Store) Create(ctx context.Context, input CreateInput) (*models.Entry, error) {
	now := time.Now()
	e := models.Entry{
		ID:             primitive.NewObjectID(),
		OwnerID:        input.OwnerID,
		Kind:           input.Kind,
		Name:           input.Name,
		NameCI:         text.Fold(input.Name),
		ParentID:       input.ParentID,
		Path:           input.Path,
		Size:           input.Size,
		MimeType:       input.MimeType,
		StorageKey:     input.StorageKey,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.c.InsertOne(ctx, e); err != nil {
		return nil, err
	}

	return &e, nil
}

// GetByID retrieves an entry by ID regardless of trash state, scoped to
// an owner.
func (s *Store) GetByID(ctx context.Context, ownerID, id primitive.ObjectID) (*models.Entry, error) {
	var e models.Entry
	err := s.c.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetLive retrieves an entry that is not in the trash.
func (s *Store) GetLive(ctx context.Context, ownerID, id primitive.ObjectID) (*models.Entry, error) {
	var e models.Entry
	err := s.c.FindOne(ctx, bson.M{
		"_id":        id,
		"owner_id":   ownerID,
		"is_deleted": false,
	}).Decode(&e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetLiveFolder retrieves a live entry that must be a folder.
func (s *Store) GetLiveFolder(ctx context.Context, ownerID, id primitive.ObjectID) (*models.Entry, error) {
	var e models.Entry
	err := s.c.FindOne(ctx, bson.M{
		"_id":        id,
		"owner_id":   ownerID,
		"kind":       models.KindFolder,
		"is_deleted": false,
	}).Decode(&e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListChildren returns the live children of a parent, folders first,
// then case-insensitive name order. Pass nil for parentID to list the
// root, and an empty kind to list both kinds.
func (s *Store) ListChildren(ctx context.Context, ownerID primitive.ObjectID, parentID *primitive.ObjectID, kind models.EntryKind) ([]models.Entry, error) {
	filter := bson.M{
		"owner_id":   ownerID,
		"parent_id":  parentID,
		"is_deleted": false,
	}
	if kind != "" {
		filter["kind"] = kind
	}

	// "folder" > "file", so kind descending puts folders first.
	findOpts := options.Find().SetSort(bson.D{
		{Key: "kind", Value: -1},
		{Key: "name_ci", Value: 1},
	})

	cursor, err := s.c.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// ListAllChildren returns every child of a parent regardless of trash
// state. Recursive deletion uses this so trashed descendants are not
// stranded when an ancestor is removed.
func (s *Store) ListAllChildren(ctx context.Context, ownerID, parentID primitive.ObjectID) ([]models.Entry, error) {
	cursor, err := s.c.Find(ctx, bson.M{
		"owner_id":  ownerID,
		"parent_id": parentID,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// NameExists checks whether a live sibling with the same kind and exact
// name already exists under a parent. Pass excludeID to ignore the
// entry being renamed or moved.
func (s *Store) NameExists(ctx context.Context, ownerID primitive.ObjectID, parentID *primitive.ObjectID, kind models.EntryKind, name string, excludeID *primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"owner_id":   ownerID,
		"parent_id":  parentID,
		"kind":       kind,
		"name":       name,
		"is_deleted": false,
	}

	if excludeID != nil {
		filter["_id"] = bson.M{"$ne": *excludeID}
	}

	count, err := s.c.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// SearchOptions narrows a name search.
type SearchOptions struct {
	Kind           models.EntryKind // empty = both
	IncludeAITags  bool             // also match cached assistant tags/summary
	Limit          int64
}

// SearchByName finds live entries whose name contains the query,
// case-insensitively. With IncludeAITags set, cached assistant tags and
// summaries match too.
func (s *Store) SearchByName(ctx context.Context, ownerID primitive.ObjectID, query string, opts SearchOptions) ([]models.Entry, error) {
	folded := text.Fold(query)
	nameMatch := bson.M{"name_ci": bson.M{"$regex": regexQuote(folded)}}

	filter := bson.M{
		"owner_id":   ownerID,
		"is_deleted": false,
	}
	if opts.Kind != "" {
		filter["kind"] = opts.Kind
	}

	if opts.IncludeAITags {
		filter["$or"] = []bson.M{
			nameMatch,
			{"ai_tags": bson.M{"$regex": regexQuote(query), "$options": "i"}},
			{"ai_summary": bson.M{"$regex": regexQuote(query), "$options": "i"}},
		}
	} else {
		filter["name_ci"] = nameMatch["name_ci"]
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "kind", Value: -1}, {Key: "name_ci", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.c.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// ListRecent returns the most recently accessed live files.
func (s *Store) ListRecent(ctx context.Context, ownerID primitive.ObjectID, limit int64) ([]models.Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "last_accessed_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.c.Find(ctx, bson.M{
		"owner_id":   ownerID,
		"kind":       models.KindFile,
		"is_deleted": false,
	}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// ListStarred returns all live starred entries, folders first.
func (s *Store) ListStarred(ctx context.Context, ownerID primitive.ObjectID) ([]models.Entry, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "kind", Value: -1},
		{Key: "name_ci", Value: 1},
	})

	cursor, err := s.c.Find(ctx, bson.M{
		"owner_id":   ownerID,
		"is_starred": true,
		"is_deleted": false,
	}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// ListTrash returns the owner's trashed entries, most recently trashed
// first.
func (s *Store) ListTrash(ctx context.Context, ownerID primitive.ObjectID) ([]models.Entry, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "deleted_at", Value: -1}})

	cursor, err := s.c.Find(ctx, bson.M{
		"owner_id":   ownerID,
		"is_deleted": true,
	}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// ListTrashedBefore returns entries trashed before the cutoff, across
// all owners. The retention job uses this.
func (s *Store) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]models.Entry, error) {
	if limit <= 0 {
		limit = 500
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "deleted_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := s.c.Find(ctx, bson.M{
		"is_deleted": true,
		"deleted_at": bson.M{"$lt": cutoff},
	}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// UpdateName sets a new name (and folded form) on an entry.
func (s *Store) UpdateName(ctx context.Context, id primitive.ObjectID, name string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"name":       name,
		"name_ci":    text.Fold(name),
		"updated_at": time.Now(),
	}})
	return err
}

// UpdateParent reparents an entry. Pass nil to move it to the root.
func (s *Store) UpdateParent(ctx context.Context, id primitive.ObjectID, parentID *primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"updated_at": time.Now()}}
	if parentID != nil {
		update["$set"].(bson.M)["parent_id"] = *parentID
	} else {
		update["$unset"] = bson.M{"parent_id": ""}
	}

	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// UpdatePath refreshes the materialized path cache.
func (s *Store) UpdatePath(ctx context.Context, id primitive.ObjectID, path string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"path": path,
	}})
	return err
}

// SetStarred sets the star flag.
func (s *Store) SetStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"is_starred": starred,
		"updated_at": time.Now(),
	}})
	return err
}

// MarkDeleted moves an entry to the trash, remembering its parent so a
// later restore can put it back. The entry is detached from its parent:
// trash items live independently of the tree, so purging their old
// parent later does not take them along.
func (s *Store) MarkDeleted(ctx context.Context, id primitive.ObjectID, originalParentID *primitive.ObjectID) error {
	now := time.Now()
	set := bson.M{
		"is_deleted": true,
		"deleted_at": now,
		"updated_at": now,
	}
	if originalParentID != nil {
		set["original_parent_id"] = *originalParentID
	}

	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   set,
		"$unset": bson.M{"parent_id": ""},
	})
	return err
}

// ClearDeleted takes an entry out of the trash and attaches it to the
// given parent (nil = root). A duplicate-key error from the unique
// index surfaces unchanged.
func (s *Store) ClearDeleted(ctx context.Context, id primitive.ObjectID, parentID *primitive.ObjectID) error {
	set := bson.M{
		"is_deleted": false,
		"updated_at": time.Now(),
	}
	unset := bson.M{
		"deleted_at":         "",
		"original_parent_id": "",
	}
	if parentID != nil {
		set["parent_id"] = *parentID
	} else {
		unset["parent_id"] = ""
	}

	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set, "$unset": unset})
	return err
}

// Remove permanently deletes an entry row.
func (s *Store) Remove(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// TouchAccess records that a file was just opened.
func (s *Store) TouchAccess(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"last_accessed_at": time.Now(),
	}})
	return err
}

// AnnotationInput carries the assistant-written fields. Only these four
// fields are ever touched by an annotation write.
type AnnotationInput struct {
	Summary   string
	KeyPoints []string
	Tags      []string
}

// SetAnnotations replaces the cached assistant annotations on an entry.
func (s *Store) SetAnnotations(ctx context.Context, id primitive.ObjectID, input AnnotationInput) error {
	now := time.Now()
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"ai_summary":      input.Summary,
		"ai_key_points":   input.KeyPoints,
		"ai_tags":         input.Tags,
		"ai_processed_at": now,
	}})
	return err
}

// StorageStats summarizes an owner's usage: live bytes plus what the
// trash is still holding.
type StorageStats struct {
	TotalBytes   int64            `json:"total_bytes"`
	TrashBytes   int64            `json:"trash_bytes"`
	FileCount    int64            `json:"file_count"`
	FolderCount  int64            `json:"folder_count"`
	TrashCount   int64            `json:"trash_count"`
	ByMimeType   map[string]int64 `json:"by_mime_type"`
	StarredCount int64            `json:"starred_count"`
}

// GetStorageStats aggregates usage totals for an owner. File bytes are
// summed in a single pass over both live and trashed files, so the
// caller can see how much space emptying the trash would release.
func (s *Store) GetStorageStats(ctx context.Context, ownerID primitive.ObjectID) (*StorageStats, error) {
	stats := &StorageStats{ByMimeType: make(map[string]int64)}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"owner_id": ownerID,
			"kind":     models.KindFile,
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"deleted": "$is_deleted",
				"mime":    "$mime_type",
			},
			"bytes": bson.M{"$sum": "$size"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Group struct {
			Deleted  bool   `bson:"deleted"`
			MimeType string `bson:"mime"`
		} `bson:"_id"`
		Bytes int64 `bson:"bytes"`
		Count int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	for _, r := range rows {
		if r.Group.Deleted {
			stats.TrashBytes += r.Bytes
			continue
		}
		stats.TotalBytes += r.Bytes
		stats.FileCount += r.Count
		mt := r.Group.MimeType
		if mt == "" {
			mt = "application/octet-stream"
		}
		stats.ByMimeType[mt] += r.Bytes
	}

	folderCount, err := s.c.CountDocuments(ctx, bson.M{
		"owner_id":   ownerID,
		"kind":       models.KindFolder,
		"is_deleted": false,
	})
	if err != nil {
		return nil, err
	}
	stats.FolderCount = folderCount

	trashCount, err := s.c.CountDocuments(ctx, bson.M{
		"owner_id":   ownerID,
		"is_deleted": true,
	})
	if err != nil {
		return nil, err
	}
	stats.TrashCount = trashCount

	starredCount, err := s.c.CountDocuments(ctx, bson.M{
		"owner_id":   ownerID,
		"is_starred": true,
		"is_deleted": false,
	})
	if err != nil {
		return nil, err
	}
	stats.StarredCount = starredCount

	return stats, nil
}

// IsDuplicateKeyErr reports whether err is a unique-index violation.
func IsDuplicateKeyErr(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// regexQuote escapes regex metacharacters so user input matches
// literally.
func regexQuote(s string) string {
	return regexp.QuoteMeta(s)
}
