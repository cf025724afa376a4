package controllers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/internal/pkg/payment"
)

var paymentReconciler *payment.Reconciler

// InitializeWebhookController wires the webhook controller with the
// reconciler.
func InitializeWebhookController(r *payment.Reconciler) {
	paymentReconciler = r
}

type notificationBody struct {
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
	ExternalID string `json:"external_id"`
}

// HandlePaymentNotification accepts the gateway's webhook push. The body
// carries only the charge id; the authoritative status is re-queried from
// the gateway before any state transition.
func HandlePaymentNotification(c *fiber.Ctx) error {
	raw := c.Body()

	var body notificationBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid notification body")
	}

	chargeID := body.Data.ID.String()
	if chargeID == "" {
		chargeID = body.ExternalID
	}
	if chargeID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "charge id not found in notification body")
	}

	eventID := c.Get("X-Request-Id")
	if err := paymentReconciler.HandleNotification(c.Context(), chargeID, eventID, string(raw)); err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			// Logged by the reconciler; gateways retry on 5xx, not on 404.
			return jsonError(c, fiber.StatusNotFound, "payment_not_found", "payment not found")
		}
		log.Errorf("[Webhook] notification for charge %s failed: %v", chargeID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "failed to process notification")
	}

	return c.JSON(fiber.Map{"accepted": true})
}
