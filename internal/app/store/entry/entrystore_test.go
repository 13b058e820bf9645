package entry

import (
	"testing"
	"time"

	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/stratadrive/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNew(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	if store == nil {
		t.Fatal("New() returned nil")
	}
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	e, err := store.Create(ctx, CreateInput{
		OwnerID: ownerID,
		Kind:    models.KindFolder,
		Name:    "Documents",
		Path:    "/Documents",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if e.ID.IsZero() {
		t.Error("ID should not be zero")
	}
	if e.Name != "Documents" {
		t.Errorf("Name = %v, want Documents", e.Name)
	}
	if e.NameCI != "documents" {
		t.Errorf("NameCI = %v, want documents", e.NameCI)
	}
	if e.ParentID != nil {
		t.Error("ParentID should be nil for a root entry")
	}
	if e.IsDeleted {
		t.Error("new entries should not be in the trash")
	}
}

func TestStore_Create_DuplicateSiblingName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	if _, err := store.Create(ctx, CreateInput{
		OwnerID: ownerID,
		Kind:    models.KindFolder,
		Name:    "Projects",
		Path:    "/Projects",
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Same kind + same name + same parent must hit the unique index.
	_, err := store.Create(ctx, CreateInput{
		OwnerID: ownerID,
		Kind:    models.KindFolder,
		Name:    "Projects",
		Path:    "/Projects",
	})
	if !IsDuplicateKeyErr(err) {
		t.Errorf("Create() duplicate error = %v, want duplicate key", err)
	}

	// A file with the same name is a different kind and is allowed.
	if _, err := store.Create(ctx, CreateInput{
		OwnerID: ownerID,
		Kind:    models.KindFile,
		Name:    "Projects",
		Path:    "/Projects",
	}); err != nil {
		t.Errorf("Create() file with folder's name error = %v", err)
	}

	// A different owner can reuse the name freely.
	if _, err := store.Create(ctx, CreateInput{
		OwnerID: primitive.NewObjectID(),
		Kind:    models.KindFolder,
		Name:    "Projects",
		Path:    "/Projects",
	}); err != nil {
		t.Errorf("Create() same name for other owner error = %v", err)
	}
}

func TestStore_GetLive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	created, _ := store.Create(ctx, CreateInput{
		OwnerID: ownerID,
		Kind:    models.KindFile,
		Name:    "notes.txt",
		Path:    "/notes.txt",
		Size:    42,
	})

	e, err := store.GetLive(ctx, ownerID, created.ID)
	if err != nil {
		t.Fatalf("GetLive() error = %v", err)
	}
	if e.Size != 42 {
		t.Errorf("Size = %d, want 42", e.Size)
	}

	// Wrong owner must not see the entry.
	if _, err := store.GetLive(ctx, primitive.NewObjectID(), created.ID); err != mongo.ErrNoDocuments {
		t.Errorf("GetLive() wrong owner error = %v, want %v", err, mongo.ErrNoDocuments)
	}

	// Trashed entries are invisible to GetLive but not GetByID.
	if err := store.MarkDeleted(ctx, created.ID, nil); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}
	if _, err := store.GetLive(ctx, ownerID, created.ID); err != mongo.ErrNoDocuments {
		t.Errorf("GetLive() trashed error = %v, want %v", err, mongo.ErrNoDocuments)
	}
	if _, err := store.GetByID(ctx, ownerID, created.ID); err != nil {
		t.Errorf("GetByID() trashed error = %v", err)
	}
}

func TestStore_ListChildren_FoldersFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "alpha.txt", Path: "/alpha.txt"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "Zebra", Path: "/Zebra"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "apple", Path: "/apple"})

	children, err := store.ListChildren(ctx, ownerID, nil, "")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("ListChildren() count = %d, want 3", len(children))
	}

	// Folders first, then case-insensitive name order within each kind.
	if children[0].Name != "apple" || children[1].Name != "Zebra" || children[2].Name != "alpha.txt" {
		t.Errorf("ListChildren() order = [%s %s %s], want [apple Zebra alpha.txt]",
			children[0].Name, children[1].Name, children[2].Name)
	}
}

func TestStore_ListChildren_ExcludesTrashed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	keep, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "keep.txt", Path: "/keep.txt"})
	gone, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "gone.txt", Path: "/gone.txt"})

	store.MarkDeleted(ctx, gone.ID, nil)

	children, err := store.ListChildren(ctx, ownerID, nil, "")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(children) != 1 || children[0].ID != keep.ID {
		t.Errorf("ListChildren() should only return the live entry, got %d entries", len(children))
	}
}

func TestStore_NameExists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	created, _ := store.Create(ctx, CreateInput{
		OwnerID: ownerID,
		Kind:    models.KindFolder,
		Name:    "Reports",
		Path:    "/Reports",
	})

	exists, err := store.NameExists(ctx, ownerID, nil, models.KindFolder, "Reports", nil)
	if err != nil {
		t.Fatalf("NameExists() error = %v", err)
	}
	if !exists {
		t.Error("NameExists() should find the exact name")
	}

	// The sibling rule is exact-match, not case-folded.
	exists, _ = store.NameExists(ctx, ownerID, nil, models.KindFolder, "REPORTS", nil)
	if exists {
		t.Error("NameExists() should be case-sensitive")
	}

	// Different kind does not collide.
	exists, _ = store.NameExists(ctx, ownerID, nil, models.KindFile, "Reports", nil)
	if exists {
		t.Error("NameExists() should scope to kind")
	}

	// Excluding the entry itself (rename no-op case).
	exists, _ = store.NameExists(ctx, ownerID, nil, models.KindFolder, "Reports", &created.ID)
	if exists {
		t.Error("NameExists() should honor excludeID")
	}

	// A trashed entry does not occupy its name slot.
	store.MarkDeleted(ctx, created.ID, nil)
	exists, _ = store.NameExists(ctx, ownerID, nil, models.KindFolder, "Reports", nil)
	if exists {
		t.Error("NameExists() should ignore trashed entries")
	}
}

func TestStore_MarkDeleted_ClearDeleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	parent, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "Home", Path: "/Home"})
	file, _ := store.Create(ctx, CreateInput{
		OwnerID:  ownerID,
		Kind:     models.KindFile,
		Name:     "cv.pdf",
		ParentID: &parent.ID,
		Path:     "/Home/cv.pdf",
	})

	if err := store.MarkDeleted(ctx, file.ID, file.ParentID); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}

	trashed, _ := store.GetByID(ctx, ownerID, file.ID)
	if !trashed.IsDeleted {
		t.Error("entry should be marked deleted")
	}
	if trashed.DeletedAt == nil {
		t.Error("DeletedAt should be set")
	}
	if trashed.OriginalParentID == nil || *trashed.OriginalParentID != parent.ID {
		t.Error("OriginalParentID should remember the parent")
	}
	// Trash items are detached; only OriginalParentID remembers where
	// they came from.
	if trashed.ParentID != nil {
		t.Error("ParentID should be cleared on soft delete")
	}

	if err := store.ClearDeleted(ctx, file.ID, &parent.ID); err != nil {
		t.Fatalf("ClearDeleted() error = %v", err)
	}

	restored, _ := store.GetByID(ctx, ownerID, file.ID)
	if restored.IsDeleted {
		t.Error("entry should be live after ClearDeleted")
	}
	if restored.DeletedAt != nil || restored.OriginalParentID != nil {
		t.Error("trash bookkeeping fields should be cleared")
	}
}

func TestStore_ClearDeleted_ToRoot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	parent, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "Tmp", Path: "/Tmp"})
	file, _ := store.Create(ctx, CreateInput{
		OwnerID:  ownerID,
		Kind:     models.KindFile,
		Name:     "orphan.txt",
		ParentID: &parent.ID,
		Path:     "/Tmp/orphan.txt",
	})

	store.MarkDeleted(ctx, file.ID, file.ParentID)

	if err := store.ClearDeleted(ctx, file.ID, nil); err != nil {
		t.Fatalf("ClearDeleted() error = %v", err)
	}

	restored, _ := store.GetByID(ctx, ownerID, file.ID)
	if restored.ParentID != nil {
		t.Error("ParentID should be nil after restoring to root")
	}
}

func TestStore_SearchByName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "Quarterly Report.pdf", Path: "/Quarterly Report.pdf"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "holiday.jpg", Path: "/holiday.jpg"})
	trashed, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "old report.txt", Path: "/old report.txt"})
	store.MarkDeleted(ctx, trashed.ID, nil)

	results, err := store.SearchByName(ctx, ownerID, "report", SearchOptions{})
	if err != nil {
		t.Fatalf("SearchByName() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchByName() count = %d, want 1 (trashed excluded)", len(results))
	}
	if results[0].Name != "Quarterly Report.pdf" {
		t.Errorf("SearchByName() = %v, want Quarterly Report.pdf", results[0].Name)
	}

	// Regex metacharacters in the query must match literally.
	results, err = store.SearchByName(ctx, ownerID, ".pdf", SearchOptions{})
	if err != nil {
		t.Fatalf("SearchByName() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("SearchByName(.pdf) count = %d, want 1", len(results))
	}
}

func TestStore_SearchByName_AITags(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	e, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "scan001.pdf", Path: "/scan001.pdf"})
	store.SetAnnotations(ctx, e.ID, AnnotationInput{
		Summary: "Signed apartment lease agreement",
		Tags:    []string{"lease", "legal"},
	})

	results, err := store.SearchByName(ctx, ownerID, "lease", SearchOptions{IncludeAITags: true})
	if err != nil {
		t.Fatalf("SearchByName() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("SearchByName() with tags count = %d, want 1", len(results))
	}

	// Without tag matching the same query finds nothing.
	results, _ = store.SearchByName(ctx, ownerID, "lease", SearchOptions{})
	if len(results) != 0 {
		t.Errorf("SearchByName() without tags count = %d, want 0", len(results))
	}
}

func TestStore_ListRecent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	first, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "a.txt", Path: "/a.txt"})
	second, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "b.txt", Path: "/b.txt"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "NotAFile", Path: "/NotAFile"})

	// Touch the first file so it becomes the most recent.
	time.Sleep(5 * time.Millisecond)
	if err := store.TouchAccess(ctx, first.ID); err != nil {
		t.Fatalf("TouchAccess() error = %v", err)
	}

	recent, err := store.ListRecent(ctx, ownerID, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent() count = %d, want 2 (folders excluded)", len(recent))
	}
	if recent[0].ID != first.ID || recent[1].ID != second.ID {
		t.Error("ListRecent() should order by last access, newest first")
	}

	// Limit applies.
	recent, _ = store.ListRecent(ctx, ownerID, 1)
	if len(recent) != 1 {
		t.Errorf("ListRecent(1) count = %d, want 1", len(recent))
	}
}

func TestStore_ListStarred(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	starred, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "fav.txt", Path: "/fav.txt"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "plain.txt", Path: "/plain.txt"})

	store.SetStarred(ctx, starred.ID, true)

	results, err := store.ListStarred(ctx, ownerID)
	if err != nil {
		t.Fatalf("ListStarred() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != starred.ID {
		t.Errorf("ListStarred() should return only the starred entry")
	}
}

func TestStore_ListTrash_And_TrashedBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	a, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "a.txt", Path: "/a.txt"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "b.txt", Path: "/b.txt"})

	store.MarkDeleted(ctx, a.ID, nil)

	trash, err := store.ListTrash(ctx, ownerID)
	if err != nil {
		t.Fatalf("ListTrash() error = %v", err)
	}
	if len(trash) != 1 || trash[0].ID != a.ID {
		t.Errorf("ListTrash() should return only the trashed entry")
	}

	old, err := store.ListTrashedBefore(ctx, time.Now().Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("ListTrashedBefore() error = %v", err)
	}
	if len(old) != 1 {
		t.Errorf("ListTrashedBefore(future) count = %d, want 1", len(old))
	}

	old, _ = store.ListTrashedBefore(ctx, time.Now().Add(-time.Minute), 0)
	if len(old) != 0 {
		t.Errorf("ListTrashedBefore(past) count = %d, want 0", len(old))
	}
}

func TestStore_GetStorageStats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "a.pdf", Path: "/a.pdf", Size: 100, MimeType: "application/pdf"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "b.pdf", Path: "/b.pdf", Size: 50, MimeType: "application/pdf"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "c.png", Path: "/c.png", Size: 25, MimeType: "image/png"})
	store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "Docs", Path: "/Docs"})

	trashed, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "d.txt", Path: "/d.txt", Size: 999})
	store.MarkDeleted(ctx, trashed.ID, nil)

	stats, err := store.GetStorageStats(ctx, ownerID)
	if err != nil {
		t.Fatalf("GetStorageStats() error = %v", err)
	}

	if stats.TotalBytes != 175 {
		t.Errorf("TotalBytes = %d, want 175 (trashed excluded)", stats.TotalBytes)
	}
	if stats.TrashBytes != 999 {
		t.Errorf("TrashBytes = %d, want 999", stats.TrashBytes)
	}
	if stats.FileCount != 3 {
		t.Errorf("FileCount = %d, want 3", stats.FileCount)
	}
	if stats.FolderCount != 1 {
		t.Errorf("FolderCount = %d, want 1", stats.FolderCount)
	}
	if stats.TrashCount != 1 {
		t.Errorf("TrashCount = %d, want 1", stats.TrashCount)
	}
	if stats.ByMimeType["application/pdf"] != 150 {
		t.Errorf("ByMimeType[application/pdf] = %d, want 150", stats.ByMimeType["application/pdf"])
	}
}

func TestStore_UpdateName_And_Path(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	e, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "Old", Path: "/Old"})

	if err := store.UpdateName(ctx, e.ID, "New"); err != nil {
		t.Fatalf("UpdateName() error = %v", err)
	}
	if err := store.UpdatePath(ctx, e.ID, "/New"); err != nil {
		t.Fatalf("UpdatePath() error = %v", err)
	}

	got, _ := store.GetByID(ctx, ownerID, e.ID)
	if got.Name != "New" || got.NameCI != "new" || got.Path != "/New" {
		t.Errorf("after update: Name=%s NameCI=%s Path=%s", got.Name, got.NameCI, got.Path)
	}
}

func TestStore_UpdateParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	dest, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFolder, Name: "Dest", Path: "/Dest"})
	e, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "move.txt", Path: "/move.txt"})

	if err := store.UpdateParent(ctx, e.ID, &dest.ID); err != nil {
		t.Fatalf("UpdateParent() error = %v", err)
	}
	got, _ := store.GetByID(ctx, ownerID, e.ID)
	if got.ParentID == nil || *got.ParentID != dest.ID {
		t.Error("ParentID should point at the destination")
	}

	if err := store.UpdateParent(ctx, e.ID, nil); err != nil {
		t.Fatalf("UpdateParent(nil) error = %v", err)
	}
	got, _ = store.GetByID(ctx, ownerID, e.ID)
	if got.ParentID != nil {
		t.Error("ParentID should be nil after moving to root")
	}
}

func TestStore_SetAnnotations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ownerID := primitive.NewObjectID()

	e, _ := store.Create(ctx, CreateInput{OwnerID: ownerID, Kind: models.KindFile, Name: "doc.pdf", Path: "/doc.pdf"})

	err := store.SetAnnotations(ctx, e.ID, AnnotationInput{
		Summary:   "A rental contract",
		KeyPoints: []string{"12 month term", "deposit required"},
		Tags:      []string{"contract"},
	})
	if err != nil {
		t.Fatalf("SetAnnotations() error = %v", err)
	}

	got, _ := store.GetByID(ctx, ownerID, e.ID)
	if got.AISummary != "A rental contract" {
		t.Errorf("AISummary = %v", got.AISummary)
	}
	if len(got.AIKeyPoints) != 2 || len(got.AITags) != 1 {
		t.Error("annotation slices not stored")
	}
	if got.AIProcessedAt == nil {
		t.Error("AIProcessedAt should be set")
	}
}
