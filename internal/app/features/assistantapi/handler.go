// Package assistantapi is the read/annotate surface consumed by the AI
// subsystem. It can look at an owner's entries and write cached
// annotations (summary, key points, tags) onto them; it can never touch
// the tree's structure.
package assistantapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/stratadrive/internal/app/store/entry"
	"github.com/dalemusser/stratadrive/internal/app/system/auth"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadrive/internal/app/tree"
	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	maxSummaryLen  = 4096
	maxKeyPoints   = 20
	maxTags        = 30
	maxFragmentLen = 512
)

// Handler handles assistant API requests.
type Handler struct {
	mgr     *tree.Manager
	entries *entry.Store
	logger  *zap.Logger

	// sanitizer strips all markup; model output is stored as plain text.
	sanitizer *bluemonday.Policy
}

// NewHandler creates a new assistant API handler.
func NewHandler(mgr *tree.Manager, entries *entry.Store, logger *zap.Logger) *Handler {
	return &Handler{
		mgr:       mgr,
		entries:   entries,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (h *Handler) writeTreeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, tree.ErrNotFound):
		jsonutil.NotFound(w, "entry not found")
	default:
		h.logger.Error("assistant operation failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		jsonutil.InternalError(w, "internal error")
	}
}

func ownerID(r *http.Request) primitive.ObjectID {
	id, _ := auth.OwnerID(r.Context())
	return id
}

func entryID(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
}

// GetEntry handles GET /entries/{id}: full metadata for one live entry,
// annotations included.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	e, err := h.mgr.Get(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, e)
}

// Children handles GET /entries/{id}/children. The id "root" lists the
// top level.
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	var parentID *primitive.ObjectID
	if raw := chi.URLParam(r, "id"); raw != "root" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			jsonutil.BadRequest(w, "invalid entry id")
			return
		}
		folder, err := h.mgr.Get(r.Context(), owner, id)
		if err != nil {
			h.writeTreeError(w, r, err)
			return
		}
		if !folder.IsFolder() {
			jsonutil.NotFound(w, "entry not found")
			return
		}
		parentID = &id
	}

	children, err := h.entries.ListChildren(r.Context(), owner, parentID, "")
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": children})
}

// Search handles GET /search?q=: name matches plus matches against the
// cached annotations, so the assistant can find things it has already
// summarized.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonutil.BadRequest(w, "missing query parameter q")
		return
	}

	results, err := h.entries.SearchByName(r.Context(), ownerID(r), q, entry.SearchOptions{
		IncludeAITags: true,
	})
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	jsonutil.OK(w, map[string]any{"entries": results})
}

type annotationsRequest struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Tags      []string `json:"tags"`
}

// PutAnnotations handles PUT /entries/{id}/annotations. All text is
// stripped to plain text before storage; structural fields are never
// written through this path.
func (h *Handler) PutAnnotations(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		jsonutil.BadRequest(w, "invalid entry id")
		return
	}

	var req annotationsRequest
	if err := jsonutil.Decode(r, &req); err != nil {
		jsonutil.BadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Summary) > maxSummaryLen {
		jsonutil.BadRequest(w, "summary too long")
		return
	}
	if len(req.KeyPoints) > maxKeyPoints {
		jsonutil.BadRequest(w, "too many key points")
		return
	}
	if len(req.Tags) > maxTags {
		jsonutil.BadRequest(w, "too many tags")
		return
	}

	owner := ownerID(r)
	e, err := h.mgr.Get(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	input := entry.AnnotationInput{
		Summary:   h.clean(req.Summary, maxSummaryLen),
		KeyPoints: h.cleanAll(req.KeyPoints),
		Tags:      h.cleanAll(req.Tags),
	}
	if err := h.entries.SetAnnotations(r.Context(), e.ID, input); err != nil {
		h.writeTreeError(w, r, err)
		return
	}

	updated, err := h.mgr.Get(r.Context(), owner, id)
	if err != nil {
		h.writeTreeError(w, r, err)
		return
	}
	jsonutil.OK(w, updated)
}

// clean sanitizes one text fragment and enforces a length cap.
func (h *Handler) clean(s string, max int) string {
	s = strings.TrimSpace(h.sanitizer.Sanitize(s))
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// cleanAll sanitizes a list, dropping fragments that end up empty.
func (h *Handler) cleanAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if cleaned := h.clean(s, maxFragmentLen); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
