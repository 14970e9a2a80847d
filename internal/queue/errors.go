package queue

import "errors"

var (
	// ErrNotFound means the submission is no longer stored. Processors treat it
	// as already resolved by another pass.
	ErrNotFound = errors.New("submission not found")
	// ErrDuplicateID is returned by Add when the id is already queued.
	ErrDuplicateID = errors.New("submission id already queued")
	// ErrStaleLocation is returned by UpdateLocation when the new reading is
	// itself outside the freshness window.
	ErrStaleLocation = errors.New("location is outside the freshness window")
)
