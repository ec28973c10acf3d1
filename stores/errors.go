package stores

import "errors"

// Domain rules checked client-side before any network call.
var (
	// ErrSelfRequest rejects a friend request addressed to oneself.
	ErrSelfRequest = errors.New("stores: cannot send a friend request to yourself")
	// ErrDuplicateRequest rejects a friend request when a pending request or
	// an existing friendship already connects the pair.
	ErrDuplicateRequest = errors.New("stores: request or friendship already exists")
	// ErrDailyLimitReached rejects logging a mission past its per-day cap.
	ErrDailyLimitReached = errors.New("stores: daily limit reached for this mission")
	// ErrUnknownMission rejects logging a mission id absent from the catalog.
	ErrUnknownMission = errors.New("stores: unknown mission")
)
