package domain

import "errors"

var (
	// ErrValidation covers malformed or missing input, rejected before
	// any state change.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyClaimed means a different staff identity already holds
	// the claim. Expected under concurrent claim races; not a fault.
	ErrAlreadyClaimed = errors.New("order already claimed")

	// ErrNotQueued means the order is absent from both the in-memory
	// queue and storage in a claimable status.
	ErrNotQueued = errors.New("order not queued")

	// ErrNotAssignable means the order's status does not admit a floor
	// claim or acknowledgement.
	ErrNotAssignable = errors.New("order not assignable")

	// ErrTransition means the action was invoked against a status that
	// does not permit it.
	ErrTransition = errors.New("invalid status transition")

	// ErrNotFound means no order exists with the given identifier.
	ErrNotFound = errors.New("order not found")
)
