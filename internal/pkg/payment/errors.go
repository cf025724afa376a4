package payment

import "errors"

var (
	// ErrRaffleNotFound is returned when a purchase targets an unknown raffle.
	ErrRaffleNotFound = errors.New("raffle not found")

	// ErrRaffleClosed is returned when the raffle's sale window has ended.
	ErrRaffleClosed = errors.New("raffle has ended, tickets can no longer be purchased")

	// ErrPaymentNotFound is returned when a notification references an
	// unknown transaction.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrUpstream wraps payment gateway failures. The reservation is always
	// released before this surfaces, so the caller may safely retry.
	ErrUpstream = errors.New("payment gateway request failed")
)
