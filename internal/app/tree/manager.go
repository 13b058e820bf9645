// Package tree implements the drive's hierarchical filesystem model:
// creating, renaming, moving, trashing, restoring, and purging entries,
// plus the derived views (breadcrumb paths, recursive folder sizes).
//
// The parent chain in the entries collection is the single source of
// truth for structure. Materialized paths are a display cache that this
// package derives and refreshes; nothing here ever trusts a stored path
// to make a structural decision.
package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/stratadrive/internal/app/store/entry"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MaxDepth bounds every parent-chain walk. A chain longer than this is
// treated as corrupt rather than walked forever.
const MaxDepth = 100

// Manager coordinates all structural operations on an owner's tree.
type Manager struct {
	entries *entry.Store
	blobs   blobstore.Store
	db      *mongo.Database
	logger  *zap.Logger
}

// New creates a tree manager.
func New(entries *entry.Store, blobs blobstore.Store, db *mongo.Database, logger *zap.Logger) *Manager {
	return &Manager{
		entries: entries,
		blobs:   blobs,
		db:      db,
		logger:  logger,
	}
}

// CreateFolderInput contains the input for creating a folder.
type CreateFolderInput struct {
	OwnerID  primitive.ObjectID
	Name     string
	ParentID *primitive.ObjectID // nil = root
}

// CreateFolder creates a folder under the given parent.
func (m *Manager) CreateFolder(ctx context.Context, input CreateFolderInput) (*models.Entry, error) {
	var created *models.Entry

	err := txn.Run(ctx, m.db, m.logger, func(ctx context.Context) error {
		ancestors, err := m.resolveParent(ctx, input.OwnerID, input.ParentID)
		if err != nil {
			return err
		}
		if len(ancestors)+1 > MaxDepth {
			return ErrTooDeep
		}

		exists, err := m.entries.NameExists(ctx, input.OwnerID, input.ParentID, models.KindFolder, input.Name, nil)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		created, err = m.entries.Create(ctx, entry.CreateInput{
			OwnerID:  input.OwnerID,
			Kind:     models.KindFolder,
			Name:     input.Name,
			ParentID: input.ParentID,
			Path:     joinPath(ancestors, input.Name),
		})
		if entry.IsDuplicateKeyErr(err) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// CreateFileInput contains the input for registering an uploaded file.
type CreateFileInput struct {
	OwnerID    primitive.ObjectID
	Name       string
	ParentID   *primitive.ObjectID
	Size       int64
	MimeType   string
	StorageKey string
}

// CreateFile records a file entry whose blob has already been written
// to the object store. Files obey the same sibling-name rule folders
// do.
func (m *Manager) CreateFile(ctx context.Context, input CreateFileInput) (*models.Entry, error) {
	var created *models.Entry

	err := txn.Run(ctx, m.db, m.logger, func(ctx context.Context) error {
		ancestors, err := m.resolveParent(ctx, input.OwnerID, input.ParentID)
		if err != nil {
			return err
		}

		exists, err := m.entries.NameExists(ctx, input.OwnerID, input.ParentID, models.KindFile, input.Name, nil)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		created, err = m.entries.Create(ctx, entry.CreateInput{
			OwnerID:    input.OwnerID,
			Kind:       models.KindFile,
			Name:       input.Name,
			ParentID:   input.ParentID,
			Path:       joinPath(ancestors, input.Name),
			Size:       input.Size,
			MimeType:   input.MimeType,
			StorageKey: input.StorageKey,
		})
		if entry.IsDuplicateKeyErr(err) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Get returns a live entry, refreshing its materialized path from the
// parent chain if the cached value has gone stale.
func (m *Manager) Get(ctx context.Context, ownerID, id primitive.ObjectID) (*models.Entry, error) {
	e, err := m.liveEntry(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	ancestors, err := m.ancestorChain(ctx, ownerID, e)
	if err != nil {
		return nil, err
	}

	path := joinPath(ancestors, e.Name)
	if path != e.Path {
		if err := m.entries.UpdatePath(ctx, e.ID, path); err != nil {
			return nil, err
		}
		e.Path = path
	}

	return e, nil
}

// Rename changes an entry's name, subject to the sibling-name rule.
func (m *Manager) Rename(ctx context.Context, ownerID, id primitive.ObjectID, newName string) (*models.Entry, error) {
	var renamed *models.Entry

	err := txn.Run(ctx, m.db, m.logger, func(ctx context.Context) error {
		e, err := m.liveEntry(ctx, ownerID, id)
		if err != nil {
			return err
		}

		exists, err := m.entries.NameExists(ctx, ownerID, e.ParentID, e.Kind, newName, &e.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		if err := m.entries.UpdateName(ctx, e.ID, newName); err != nil {
			if entry.IsDuplicateKeyErr(err) {
				return ErrConflict
			}
			return err
		}

		ancestors, err := m.ancestorChain(ctx, ownerID, e)
		if err != nil {
			return err
		}
		if err := m.entries.UpdatePath(ctx, e.ID, joinPath(ancestors, newName)); err != nil {
			return err
		}

		renamed, err = m.entries.GetLive(ctx, ownerID, e.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return renamed, nil
}

// Move reparents an entry. Pass nil for newParentID to move it to the
// root. Moving a folder into itself or any of its descendants is
// rejected.
func (m *Manager) Move(ctx context.Context, ownerID, id primitive.ObjectID, newParentID *primitive.ObjectID) (*models.Entry, error) {
	var moved *models.Entry

	err := txn.Run(ctx, m.db, m.logger, func(ctx context.Context) error {
		e, err := m.liveEntry(ctx, ownerID, id)
		if err != nil {
			return err
		}

		destChain, err := m.resolveParent(ctx, ownerID, newParentID)
		if err != nil {
			return err
		}

		if e.IsFolder() && newParentID != nil {
			if *newParentID == e.ID {
				return ErrInvalidCycle
			}
			// destChain covers the destination and all of its
			// ancestors; the moved folder appearing in it means the
			// destination sits inside the moved folder's subtree.
			for i := range destChain {
				if destChain[i].ID == e.ID {
					return ErrInvalidCycle
				}
			}
		}

		if len(destChain)+1 > MaxDepth {
			return ErrTooDeep
		}

		exists, err := m.entries.NameExists(ctx, ownerID, newParentID, e.Kind, e.Name, &e.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		if err := m.entries.UpdateParent(ctx, e.ID, newParentID); err != nil {
			if entry.IsDuplicateKeyErr(err) {
				return ErrConflict
			}
			return err
		}

		if err := m.entries.UpdatePath(ctx, e.ID, joinPath(destChain, e.Name)); err != nil {
			return err
		}

		moved, err = m.entries.GetLive(ctx, ownerID, e.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return moved, nil
}

// ToggleStar flips the star flag on a live entry and returns the new
// value.
func (m *Manager) ToggleStar(ctx context.Context, ownerID, id primitive.ObjectID) (bool, error) {
	e, err := m.liveEntry(ctx, ownerID, id)
	if err != nil {
		return false, err
	}

	starred := !e.IsStarred
	if err := m.entries.SetStarred(ctx, e.ID, starred); err != nil {
		return false, err
	}

	return starred, nil
}

// SoftDelete moves a single entry to the trash. The operation is
// shallow: descendants keep their rows and parent pointers and simply
// become unreachable through live listings until the entry is restored
// or purged. The entry itself detaches from its parent, so trash items
// survive a later permanent delete of their old location.
func (m *Manager) SoftDelete(ctx context.Context, ownerID, id primitive.ObjectID) error {
	e, err := m.liveEntry(ctx, ownerID, id)
	if err != nil {
		return err
	}

	return m.entries.MarkDeleted(ctx, e.ID, e.ParentID)
}

// Restore takes an entry out of the trash. It returns to its original
// parent when that parent is still a live folder, and falls back to the
// root otherwise. A live same-kind sibling with the same name in the
// destination is a conflict; restore never renames or overwrites.
func (m *Manager) Restore(ctx context.Context, ownerID, id primitive.ObjectID) (*models.Entry, error) {
	var restored *models.Entry

	err := txn.Run(ctx, m.db, m.logger, func(ctx context.Context) error {
		e, err := m.entries.GetByID(ctx, ownerID, id)
		if err != nil {
			return mapNoDocuments(err)
		}
		if !e.IsDeleted {
			return ErrNotFound
		}

		target := e.OriginalParentID
		if target != nil {
			if _, err := m.entries.GetLiveFolder(ctx, ownerID, *target); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					target = nil // original home is gone, restore to root
				} else {
					return err
				}
			}
		}

		exists, err := m.entries.NameExists(ctx, ownerID, target, e.Kind, e.Name, nil)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		if err := m.entries.ClearDeleted(ctx, e.ID, target); err != nil {
			if entry.IsDuplicateKeyErr(err) {
				return ErrConflict
			}
			return err
		}

		restored, err = m.entries.GetLive(ctx, ownerID, e.ID)
		if err != nil {
			return err
		}

		ancestors, err := m.ancestorChain(ctx, ownerID, restored)
		if err != nil {
			return err
		}
		path := joinPath(ancestors, restored.Name)
		if err := m.entries.UpdatePath(ctx, restored.ID, path); err != nil {
			return err
		}
		restored.Path = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	return restored, nil
}

// PurgeResult reports what a recursive purge accomplished.
type PurgeResult struct {
	Purged       int `json:"purged"`
	BlobFailures int `json:"blob_failures"`
}

// HardDeleteRecursive permanently removes an entry and its entire
// subtree. File blobs are released best-effort: a failed object-store
// delete is logged and counted, and never stops the rest of the
// subtree from being removed.
func (m *Manager) HardDeleteRecursive(ctx context.Context, ownerID, id primitive.ObjectID) (*PurgeResult, error) {
	e, err := m.entries.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, mapNoDocuments(err)
	}

	return m.purgeSubtree(ctx, ownerID, e)
}

// PurgeOne permanently removes a trashed entry (and, for folders, its
// whole subtree). Only trashed entries can be purged this way.
func (m *Manager) PurgeOne(ctx context.Context, ownerID, id primitive.ObjectID) (*PurgeResult, error) {
	e, err := m.entries.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, mapNoDocuments(err)
	}
	if !e.IsDeleted {
		return nil, ErrNotFound
	}

	return m.purgeSubtree(ctx, ownerID, e)
}

// EmptyTrash purges every trashed entry for an owner. Entries that
// disappear mid-walk are skipped, which makes the operation idempotent
// under concurrent purges.
func (m *Manager) EmptyTrash(ctx context.Context, ownerID primitive.ObjectID) (*PurgeResult, error) {
	trashed, err := m.entries.ListTrash(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	total := &PurgeResult{}
	for i := range trashed {
		e, err := m.entries.GetByID(ctx, ownerID, trashed[i].ID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue // already removed with an ancestor
			}
			return total, err
		}

		res, err := m.purgeSubtree(ctx, ownerID, e)
		if res != nil {
			total.Purged += res.Purged
			total.BlobFailures += res.BlobFailures
		}
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// AncestorPath returns the chain from the root down to the entry
// itself, inclusive. This is the breadcrumb for the UI.
func (m *Manager) AncestorPath(ctx context.Context, ownerID, id primitive.ObjectID) ([]models.Entry, error) {
	e, err := m.liveEntry(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	ancestors, err := m.ancestorChain(ctx, ownerID, e)
	if err != nil {
		return nil, err
	}

	return append(ancestors, *e), nil
}

// FolderSize computes the total size of all live files in a folder's
// subtree. Sizes are never cached: the walk always reflects the current
// state of the tree.
func (m *Manager) FolderSize(ctx context.Context, ownerID, id primitive.ObjectID) (int64, error) {
	folder, err := m.entries.GetLiveFolder(ctx, ownerID, id)
	if err != nil {
		return 0, mapNoDocuments(err)
	}

	type frame struct {
		id    primitive.ObjectID
		depth int
	}

	visited := map[primitive.ObjectID]bool{folder.ID: true}
	stack := []frame{{id: folder.ID, depth: 0}}
	var total int64

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.depth >= MaxDepth {
			return 0, ErrTooDeep
		}

		children, err := m.entries.ListChildren(ctx, ownerID, &cur.id, "")
		if err != nil {
			return 0, err
		}
		for i := range children {
			child := &children[i]
			if visited[child.ID] {
				return 0, fmt.Errorf("%w: entry %s reached twice during size walk", ErrInternalInconsistency, child.ID.Hex())
			}
			visited[child.ID] = true

			switch {
			case child.IsFile():
				total += child.Size
			case child.IsFolder():
				stack = append(stack, frame{id: child.ID, depth: cur.depth + 1})
			}
		}
	}

	return total, nil
}

// purgeSubtree collects the full subtree under e (any trash state) and
// removes it leaf-first, releasing file blobs along the way.
func (m *Manager) purgeSubtree(ctx context.Context, ownerID primitive.ObjectID, e *models.Entry) (*PurgeResult, error) {
	type frame struct {
		e     models.Entry
		depth int
	}

	visited := map[primitive.ObjectID]bool{e.ID: true}
	ordered := []frame{{e: *e, depth: 0}}

	// Breadth-first collection; removal then runs in reverse so
	// children always go before their parents.
	for i := 0; i < len(ordered); i++ {
		cur := ordered[i]
		if !cur.e.IsFolder() {
			continue
		}
		if cur.depth >= MaxDepth {
			return nil, ErrTooDeep
		}

		children, err := m.entries.ListAllChildren(ctx, ownerID, cur.e.ID)
		if err != nil {
			return nil, err
		}
		for j := range children {
			if visited[children[j].ID] {
				return nil, fmt.Errorf("%w: entry %s reached twice during delete walk", ErrInternalInconsistency, children[j].ID.Hex())
			}
			visited[children[j].ID] = true
			ordered = append(ordered, frame{e: children[j], depth: cur.depth + 1})
		}
	}

	result := &PurgeResult{}
	for i := len(ordered) - 1; i >= 0; i-- {
		victim := &ordered[i].e

		if victim.IsFile() && victim.StorageKey != "" {
			if err := m.blobs.Delete(ctx, victim.StorageKey); err != nil {
				result.BlobFailures++
				m.logger.Warn("failed to release blob during purge",
					zap.String("entry_id", victim.ID.Hex()),
					zap.String("storage_key", victim.StorageKey),
					zap.Error(err))
			}
		}

		if err := m.entries.Remove(ctx, victim.ID); err != nil {
			return result, err
		}
		result.Purged++
	}

	return result, nil
}

// resolveParent validates a destination parent and returns its full
// chain (root-first, destination included). A nil parentID is the root
// and yields an empty chain. A missing or trashed parent, or a parent
// that is a file, is NotFound.
func (m *Manager) resolveParent(ctx context.Context, ownerID primitive.ObjectID, parentID *primitive.ObjectID) ([]models.Entry, error) {
	if parentID == nil {
		return nil, nil
	}

	parent, err := m.entries.GetLiveFolder(ctx, ownerID, *parentID)
	if err != nil {
		return nil, mapNoDocuments(err)
	}

	ancestors, err := m.ancestorChain(ctx, ownerID, parent)
	if err != nil {
		return nil, err
	}

	return append(ancestors, *parent), nil
}

// ancestorChain walks the parent pointers from e up to the root and
// returns the ancestors in root-first order (e itself excluded). The
// walk carries a visited set and a depth bound: a revisited node or a
// dangling pointer is corruption, not a caller error.
func (m *Manager) ancestorChain(ctx context.Context, ownerID primitive.ObjectID, e *models.Entry) ([]models.Entry, error) {
	visited := map[primitive.ObjectID]bool{e.ID: true}

	var ancestors []models.Entry
	cur := e.ParentID
	for cur != nil {
		if len(ancestors) >= MaxDepth {
			return nil, ErrTooDeep
		}
		if visited[*cur] {
			return nil, fmt.Errorf("%w: parent chain of %s contains a cycle", ErrInternalInconsistency, e.ID.Hex())
		}
		visited[*cur] = true

		parent, err := m.entries.GetByID(ctx, ownerID, *cur)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, fmt.Errorf("%w: entry %s points at missing parent %s", ErrInternalInconsistency, e.ID.Hex(), cur.Hex())
			}
			return nil, err
		}

		ancestors = append([]models.Entry{*parent}, ancestors...)
		cur = parent.ParentID
	}

	return ancestors, nil
}

// liveEntry fetches a live, owner-scoped entry, mapping the driver's
// no-documents error to NotFound.
func (m *Manager) liveEntry(ctx context.Context, ownerID, id primitive.ObjectID) (*models.Entry, error) {
	e, err := m.entries.GetLive(ctx, ownerID, id)
	if err != nil {
		return nil, mapNoDocuments(err)
	}
	return e, nil
}

// joinPath materializes a path from a root-first ancestor chain plus
// the entry's own name.
func joinPath(ancestors []models.Entry, name string) string {
	var b strings.Builder
	for i := range ancestors {
		b.WriteString("/")
		b.WriteString(ancestors[i].Name)
	}
	b.WriteString("/")
	b.WriteString(name)
	return b.String()
}

func mapNoDocuments(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
