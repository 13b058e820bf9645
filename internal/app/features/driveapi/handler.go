// Package driveapi exposes the drive's filesystem operations as a JSON
// API: folder and file management, trash, starring, search, and usage
// stats. Every route is scoped to the owner resolved from the caller's
// access key.
package driveapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/store/entry"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/blobstore"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/tree"
	"github.com/dalemusser/stratadrive/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxUploadBytes caps multipart uploads (32 MB, matching the form
// parser's in-memory threshold policy).
const maxUploadBytes = 32 << 20

// Handler handles drive API requests.
type Handler struct {
	mgr     *tree.Manager
	entries *entry.Store
	blobs   blobstore.Store
	logger  *zap.Logger
}

// NewHandler creates a new drive API handler.
func NewHandler(mgr *tree.Manager, entries *entry.Store, blobs blobstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		mgr:     mgr,
		entries: entries,
		blobs:   blobs,
		logger:  logger,
	}
}

// writeTreeError maps tree-manager failures onto HTTP responses.
// Structural violations carry precise messages; internal inconsistency
// stays generic for the caller and detailed in the log.
func (h *Handler) writeTreeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		jsonutil.NotFound(w, "entry not found")
	case errors.Is(err, tree.ErrConflict):
		jsonutil.Error(w, http.StatusConflict, "an entry with this name already exists here")
	case errors.Is(err, tree.ErrInvalidCycle):
		jsonutil.BadRequest(w, "cannot move a folder into itself or its descendants")
	case errors.Is(err, tree.ErrTooDeep):
		jsonutil.BadRequest(w, "folder nesting is too deep")
	case errors.Is(err, tree.ErrInternalInconsistency):
		h.logger.Error("tree inconsistency detected",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		jsonutil.InternalError(w, "internal error")
	default:
		h.logger.Error("drive operation failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		jsonutil.InternalError(w, "internal error")
	}
}

// ownerID pulls the authenticated owner out of the request context.
func ownerID(r *http.Request) primitive.ObjectID {
	id, _ := auth.OwnerID(r.Context())
	return id
}

// entryID parses the {id} route parameter.
func entryID(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
}

// parseParentID turns a request-supplied parent reference into a
// pointer. Empty string and "root" both mean the root.
func parseParentID(raw string) (*primitive.ObjectID, error) {
	if raw == "" || raw == "root" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// validName rejects names the tree cannot represent.
func validName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}

/* ------------------------------- folders -------------------------------- */

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// CreateFolder handles POST /folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if !validName(req.Name) {
		jsonutil.BadRequest(w, "invalid folder name")
		return
	}

	parentID, err := parseParentID(req.ParentID)
	if err != nil {
		jsonutil.BadRequest(w, "invalid parent_id")
		return
	}

	folder, err := h.mgr.CreateFolder(r.Context(), tree.CreateFolderInput{
		OwnerID:  ownerID(r),
		Name:     req.Name,
		ParentID: parentID,
	})
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.Created(w, folder)
}

// FolderContents handles GET /folders/{id}/contents. The id "root"
// lists the top level.
func (h *Handler) FolderContents(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	raw := chi.URLParam(r, "id")
	parentID, err := parseParentID(raw)
	if err != nil {
		jsonutil.BadRequest(w, "invalid folder id")
		return
	}

	var folder *models.Entry
	if parentID != nil {
		folder, err = h.mgr.Get(r.Context(), owner, *parentID)
		if err != nil {
			h.writeTreeError(w, r, err)
			return
		}
		if !folder.IsFolder() {
			jsonutil.NotFound(w, "entry not found")
			return
		}
	}

	entries, err := h.entries.ListChildren(r.Context(), owner, parentID, "")
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{
		"folder":  folder, // null at root
		"entries": entries,
	})
}

// FolderPath handles GET /folders/{id}/path: the breadcrumb from root
// to the folder, inclusive.
func (h *Handler) FolderPath(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid folder id")
		return
	}

	chain, err := h.mgr.AncestorPath(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"path": chain})
}

// FolderSize handles GET /folders/{id}/size.
func (h *Handler) FolderSize(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid folder id")
		return
	}

	size, err := h.mgr.FolderSize(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"size_bytes": size})
}

// DeleteFolder handles DELETE /folders/{id}: immediate permanent
// removal of the folder and its whole subtree.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid folder id")
		return
	}

	owner := ownerID(r)
	folder, err := h.mgr.Get(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}
	if !folder.IsFolder() {
		jsonutil.NotFound(w, "entry not found")
		return
	}

	res, err := h.mgr.HardDeleteRecursive(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, res)
}

/* -------------------------------- files --------------------------------- */

// UploadFile handles POST /files (multipart/form-data with a "file"
// part and an optional "parent_id" field). The blob is written first;
// if the entry insert then fails, the blob is cleaned up.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonutil.BadRequest(w, "invalid multipart form or file too large")
		return
	}

	uploaded, header, err := r.FormFile("file")
	if err != nil {
		jsonutil.BadRequest(w, "missing file field")
		return
	}
	defer uploaded.Close()

	name := strings.TrimSpace(header.Filename)
	if !validName(name) {
		jsonutil.BadRequest(w, "invalid file name")
		return
	}

	parentID, err := parseParentID(r.FormValue("parent_id"))
	if err != nil {
		jsonutil.BadRequest(w, "invalid parent_id")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := storageKey(owner, name)
	if err := h.blobs.Put(r.Context(), key, uploaded, &storage.PutOptions{ContentType: contentType}); err != nil {
		h.logger.Error("blob upload failed", zap.String("key", key), zap.Error(err))
		jsonutil.InternalError(w, "failed to store file")
		return
	}

	created, err := h.mgr.CreateFile(r.Context(), tree.CreateFileInput{
		OwnerID:    owner,
		Name:       name,
		ParentID:   parentID,
		Size:       header.Size,
		MimeType:   contentType,
		StorageKey: key,
	})
	if err != nil {
		// The entry never existed, so the blob is unreferenced.
		if delErr := h.blobs.Delete(r.Context(), key); delErr != nil {
			h.logger.Warn("failed to clean up orphaned blob",
				zap.String("key", key),
				zap.Error(delErr))
		}
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.Created(w, created)
}

// storageKey builds the object-store key for a new upload:
// <owner>/<timestamp>-<uuid>-<sanitized name>.
func storageKey(owner primitive.ObjectID, name string) string {
	return fmt.Sprintf("%s/%d-%s-%s", owner.Hex(), time.Now().UnixMilli(), uuid.New().String(), sanitizeName(name))
}

// sanitizeName keeps keys portable across object-store backends.
func sanitizeName(name string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '.' || c == '-' || c == '_':
			return c
		default:
			return '_'
		}
	}, name)
}

// ListFiles handles GET /files?parent_id= — files only, within one
// parent.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	parentID, err := parseParentID(r.URL.Query().Get("parent_id"))
	if err != nil {
		jsonutil.BadRequest(w, "invalid parent_id")
		return
	}

	files, err := h.entries.ListChildren(r.Context(), ownerID(r), parentID, models.KindFile)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": files})
}

// DownloadFile handles GET /files/{id}/download: returns a fetchable
// URL for the blob and records the access for the recents view.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid file id")
		return
	}

	owner := ownerID(r)
	file, err := h.mgr.Get(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}
	if !file.IsFile() {
		jsonutil.NotFound(w, "entry not found")
		return
	}

	if err := h.entries.TouchAccess(r.Context(), file.ID); err != nil {
		// Recents staleness is not worth failing a download over.
		h.logger.Warn("failed to record file access",
			zap.String("entry_id", file.ID.Hex()),
			zap.Error(err))
	}

	jsonutil.OK(w, map[string]any{
		"url":       h.blobs.URL(file.StorageKey),
		"name":      file.Name,
		"mime_type": file.MimeType,
		"size":      file.Size,
	})
}

// DeleteFile handles DELETE /files/{id}: immediate permanent removal.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid file id")
		return
	}

	owner := ownerID(r)
	file, err := h.mgr.Get(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}
	if !file.IsFile() {
		jsonutil.NotFound(w, "entry not found")
		return
	}

	res, err := h.mgr.HardDeleteRecursive(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, res)
}

/* --------------------------- shared operations --------------------------- */

type renameRequest struct {
	Name string `json:"name"`
}

// Rename handles PATCH /entries/{id}/rename for both kinds.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	var req renameRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if !validName(req.Name) {
		jsonutil.BadRequest(w, "invalid name")
		return
	}

	renamed, err := h.mgr.Rename(r.Context(), ownerID(r), id, req.Name)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, renamed)
}

type moveRequest struct {
	ParentID string `json:"parent_id,omitempty"` // empty or "root" = root
}

// Move handles PATCH /entries/{id}/move for both kinds.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	var req moveRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, "invalid JSON body")
		return
	}

	parentID, err := parseParentID(req.ParentID)
	if err != nil {
		jsonutil.BadRequest(w, "invalid parent_id")
		return
	}

	moved, err := h.mgr.Move(r.Context(), ownerID(r), id, parentID)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, moved)
}

// ToggleStar handles PATCH /entries/{id}/star.
func (h *Handler) ToggleStar(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	starred, err := h.mgr.ToggleStar(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"is_starred": starred})
}

// Trash handles POST /entries/{id}/trash (soft delete).
func (h *Handler) Trash(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	if err := h.mgr.SoftDelete(r.Context(), ownerID(r), id); err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.NoContent(w)
}

// Restore handles POST /entries/{id}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	restored, err := h.mgr.Restore(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, restored)
}

// Purge handles DELETE /entries/{id}/permanent: permanently removes a
// trashed entry.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	res, err := h.mgr.PurgeOne(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, res)
}

/* --------------------------------- views --------------------------------- */

// Search handles GET /search?q=&kind=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonutil.BadRequest(w, "missing query parameter q")
		return
	}

	kind := models.EntryKind(r.URL.Query().Get("kind"))
	if kind != "" && kind != models.KindFile && kind != models.KindFolder {
		jsonutil.BadRequest(w, "invalid kind")
		return
	}

	results, err := h.entries.SearchByName(r.Context(), ownerID(r), q, entry.SearchOptions{Kind: kind})
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": results})
}

// Recent handles GET /recent?limit=.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := int64(0)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			jsonutil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	results, err := h.entries.ListRecent(r.Context(), ownerID(r), limit)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": results})
}

// Starred handles GET /starred.
func (h *Handler) Starred(w http.ResponseWriter, r *http.Request) {
	results, err := h.entries.ListStarred(r.Context(), ownerID(r))
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": results})
}

// Trashed handles GET /trash.
func (h *Handler) Trashed(w http.ResponseWriter, r *http.Request) {
	results, err := h.entries.ListTrash(r.Context(), ownerID(r))
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": results})
}

// EmptyTrash handles DELETE /trash.
func (h *Handler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	res, err := h.mgr.EmptyTrash(r.Context(), ownerID(r))
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, res)
}

// StorageStats handles GET /storage/stats.
func (h *Handler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.entries.GetStorageStats(r.Context(), ownerID(r))
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, stats)
}
