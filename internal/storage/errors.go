package storage

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDraftAlreadyClaimed is returned by ClaimDraft when another run has
	// already taken (or completed) the claim for a draft id.
	ErrDraftAlreadyClaimed = errors.New("storage: draft already claimed")
)
