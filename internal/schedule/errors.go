package schedule

import "errors"

var (
	// ErrInvalidRequest marks malformed input (reversed date range, logistics
	// days below the minimum). Rejected before any store access.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStoreUnavailable marks a failed store lookup. Conflict detection and
	// slot finding treat it fail-closed: availability is never confirmed on a
	// broken lookup.
	ErrStoreUnavailable = errors.New("rental store unavailable")

	// ErrNoFreeDevice is the ordinary "all devices occupied" outcome of
	// FindSlot. It is not a failure; callers may retry with another window.
	ErrNoFreeDevice = errors.New("no free device for the requested window")
)
