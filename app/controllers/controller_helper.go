package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/internal/pkg/payment"
	"github.com/rafflemaster/rafflemaster/internal/pkg/raffledraw"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
)

// jsonError writes the standard error payload shape used across the API.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// mapDomainError translates core sentinel errors into HTTP responses.
// Conflict and upstream errors are marked retryable so clients know whether
// a retry can help.
func mapDomainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ticketpool.ErrInvalidQuantity):
		return jsonError(c, fiber.StatusBadRequest, "invalid_quantity", "quantity must be one of the allowed increments")
	case errors.Is(err, payment.ErrRaffleNotFound), errors.Is(err, raffledraw.ErrRaffleNotFound):
		return jsonError(c, fiber.StatusNotFound, "raffle_not_found", "raffle not found")
	case errors.Is(err, payment.ErrPaymentNotFound):
		return jsonError(c, fiber.StatusNotFound, "payment_not_found", "payment not found")
	case errors.Is(err, payment.ErrRaffleClosed):
		return jsonError(c, fiber.StatusGone, "raffle_closed", "raffle has ended, tickets can no longer be purchased")
	case errors.Is(err, ticketpool.ErrInsufficientInventory):
		return jsonError(c, fiber.StatusUnprocessableEntity, "insufficient_inventory", "not enough available tickets")
	case errors.Is(err, ticketpool.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "conflict",
			"message":   "ticket state changed concurrently, please retry",
			"retryable": true,
		})
	case errors.Is(err, raffledraw.ErrNoTicketsSold):
		return jsonError(c, fiber.StatusUnprocessableEntity, "no_tickets_sold", "no tickets sold for this raffle")
	case errors.Is(err, raffledraw.ErrAlreadyDrawn):
		return jsonError(c, fiber.StatusConflict, "already_drawn", "raffle winner already drawn")
	case errors.Is(err, payment.ErrUpstream):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":     "gateway_unavailable",
			"message":   "payment gateway request failed, please try again",
			"retryable": true,
		})
	case errors.Is(err, ticketpool.ErrInvariant):
		log.Errorf("[API] invariant violation: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	default:
		log.Errorf("[API] unexpected error: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}
}
