package domain

import "errors"

// ErrFetchFailed is returned when the external tree could not be read.
// The cache is left empty.
var ErrFetchFailed = errors.New("tree fetch failed")

// ErrMoveRejected is returned when the external store refused a move.
// The cache is left untouched.
var ErrMoveRejected = errors.New("move rejected")

// ErrAlreadyInFlight is returned when a move for the same item is still pending.
// The store is not contacted.
var ErrAlreadyInFlight = errors.New("move already in flight")

// ErrNoResolvableTarget is returned when a gesture ended over no valid container.
var ErrNoResolvableTarget = errors.New("no resolvable drop target")

// ErrDegenerateMove is returned when the insertion point is the item's own slot.
var ErrDegenerateMove = errors.New("degenerate move")

// ErrNodeNotFound is returned by stores when an id does not exist.
var ErrNodeNotFound = errors.New("node not found")

// ErrInvalidTarget is returned for structurally impossible targets
// (negative index, non-folder parent, moving a folder into itself).
var ErrInvalidTarget = errors.New("invalid target")

// IsLocalNoOp reports whether err describes a normal gesture outcome rather than a fault.
func IsLocalNoOp(err error) bool {
	return errors.Is(err, ErrNoResolvableTarget) || errors.Is(err, ErrDegenerateMove)
}
