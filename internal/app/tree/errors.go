package tree

import "errors"

// Error kinds returned by the tree manager. Callers branch on these
// with errors.Is to map outcomes to API responses.
var (
	// ErrNotFound means the target entry does not exist, is not owned
	// by the caller, or is not in the state the operation requires
	// (e.g. restoring an entry that is not in the trash).
	ErrNotFound = errors.New("entry not found")

	// ErrConflict means a live sibling of the same kind and name
	// already occupies the destination slot.
	ErrConflict = errors.New("name already exists in this location")

	// ErrInvalidCycle means a move would place a folder inside itself
	// or one of its own descendants.
	ErrInvalidCycle = errors.New("cannot move a folder into itself or its descendants")

	// ErrTooDeep means an ancestor or subtree walk exceeded the
	// maximum supported nesting depth.
	ErrTooDeep = errors.New("folder nesting exceeds the maximum depth")

	// ErrInternalInconsistency means stored data violates a structural
	// invariant (dangling parent pointer, parent-chain cycle). These
	// are server faults, never user mistakes.
	ErrInternalInconsistency = errors.New("inconsistent tree state")
)
