package ticketpool

import "errors"

var (
	// ErrInvalidQuantity is returned when the requested quantity is not one
	// of the configured purchase increments.
	ErrInvalidQuantity = errors.New("invalid ticket quantity")

	// ErrInsufficientInventory is returned when a raffle does not have enough
	// free numbers left for the request.
	ErrInsufficientInventory = errors.New("not enough available tickets")

	// ErrConflict is returned when a slot's state changed under a competing
	// writer; callers may retry with a fresh read.
	ErrConflict = errors.New("ticket slot state changed concurrently")

	// ErrInvariant is returned when a transition is requested from an illegal
	// state, e.g. committing a slot that was never reserved.
	ErrInvariant = errors.New("ticket slot state invariant violated")
)
