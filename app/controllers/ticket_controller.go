package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rafflemaster/rafflemaster/app/repository"
	"github.com/rafflemaster/rafflemaster/internal/pkg/cache"
	"github.com/rafflemaster/rafflemaster/internal/pkg/payment"
	"github.com/rafflemaster/rafflemaster/internal/pkg/usercontext"
)

var paymentService *payment.Service

// InitializeTicketController wires the ticket controller with the payment
// orchestrator.
func InitializeTicketController(svc *payment.Service) {
	paymentService = svc
}

type purchaseRequest struct {
	Quantity int    `json:"quantity"`
	Email    string `json:"email"`
}

// HandlePurchaseTickets reserves numbers on the raffle and returns the
// pending payment with its PIX pay URL. Approval arrives asynchronously via
// the payment notification webhook.
func HandlePurchaseTickets(c *fiber.Ctx) error {
	raffleID, err := c.ParamsInt("id")
	if err != nil || raffleID <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid raffle id")
	}

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "email is required")
	}

	userID := usercontext.GetUserID(c)

	p, numbers, err := paymentService.Purchase(c.Context(), uint(raffleID), userID, req.Email, req.Quantity)
	if err != nil {
		return mapDomainError(c, err)
	}

	// The reservation changed the free counter.
	_ = cache.Delete(freeCountCacheKey(uint(raffleID)))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment": p,
		"numbers": numbers,
	})
}

// HandleListMyTickets returns the committed tickets of the logged-in user.
func HandleListMyTickets(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	tickets, err := repository.GetGlobalFactory().GetTicketRepository().ListByUser(userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}
	return c.JSON(fiber.Map{"tickets": tickets})
}

// HandleListMyPayments returns the payments of the logged-in user.
func HandleListMyPayments(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	payments, err := paymentService.ListByUser(userID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal error")
	}
	return c.JSON(fiber.Map{"payments": payments})
}
