package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntryKind distinguishes files from folders in the drive tree.
type EntryKind string

// Entry kinds. The string values sort so that folders come before files
// when listings sort on kind descending, which is what the UI expects.
const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// Entry is a single node in an owner's drive tree: either a file or a
// folder. Folders never carry content; files reference a blob in the
// object store via StorageKey and never inspect it.
//
// ParentID is the source of truth for the tree structure. Path is a
// materialized cache derived from the parent chain; it is recomputed on
// rename/move and refreshed lazily on reads, and must never be used for
// structural or access-control decisions.
type Entry struct {
	ID      primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OwnerID primitive.ObjectID  `bson:"owner_id"      json:"owner_id"`
	Kind    EntryKind           `bson:"kind"          json:"kind"`
	Name    string              `bson:"name"          json:"name"`
	NameCI  string              `bson:"name_ci"       json:"-"` // Case-insensitive for sorting/search
	ParentID *primitive.ObjectID `bson:"parent_id,omitempty" json:"parent_id,omitempty"` // nil = root
	Path    string              `bson:"path"          json:"path"`

	// File metadata; zero-valued for folders. Folder size is never
	// stored, it is computed from the live subtree on demand.
	Size       int64  `bson:"size"                  json:"size"`
	MimeType   string `bson:"mime_type,omitempty"   json:"mime_type,omitempty"`
	StorageKey string `bson:"storage_key,omitempty" json:"-"`

	// Trash state. A soft-deleted entry keeps its row (and blob) until
	// purged; OriginalParentID remembers where to restore it.
	IsDeleted        bool                `bson:"is_deleted"                   json:"is_deleted"`
	DeletedAt        *time.Time          `bson:"deleted_at,omitempty"         json:"deleted_at,omitempty"`
	OriginalParentID *primitive.ObjectID `bson:"original_parent_id,omitempty" json:"-"`

	IsStarred      bool      `bson:"is_starred"       json:"is_starred"`
	LastAccessedAt time.Time `bson:"last_accessed_at" json:"last_accessed_at"`

	// Assistant annotations. Written only through the annotation
	// endpoint; never affect tree structure.
	AISummary     string     `bson:"ai_summary,omitempty"     json:"ai_summary,omitempty"`
	AIKeyPoints   []string   `bson:"ai_key_points,omitempty"  json:"ai_key_points,omitempty"`
	AITags        []string   `bson:"ai_tags,omitempty"        json:"ai_tags,omitempty"`
	AIProcessedAt *time.Time `bson:"ai_processed_at,omitempty" json:"ai_processed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsRoot returns true if the entry sits at the root of its owner's tree.
func (e *Entry) IsRoot() bool {
	return e.ParentID == nil
}

// IsFolder returns true for folder entries.
func (e *Entry) IsFolder() bool {
	return e.Kind == KindFolder
}

// IsFile returns true for file entries.
func (e *Entry) IsFile() bool {
	return e.Kind == KindFile
}
