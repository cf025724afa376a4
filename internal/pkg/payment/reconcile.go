package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
	"gorm.io/gorm"
)

// Reconciler consumes asynchronous payment-status updates and transitions
// payment plus slot state: approved commits the held numbers into tickets,
// terminal failures release them. Each transition runs the status claim and
// the slot mutation in one repository transaction, so a failed slot mutation
// leaves the payment pending and retryable. All paths are idempotent against
// duplicate webhook deliveries.
type Reconciler struct {
	repo    Repository
	gateway GatewayClient

	// notify is a best-effort confirmation hook (mail); it never fails the
	// reconciliation.
	notify func(p *models.Payment, tickets []models.Ticket)
}

// NewReconciler creates a reconciler from injected collaborators.
func NewReconciler(repo Repository, gateway GatewayClient) *Reconciler {
	return &Reconciler{repo: repo, gateway: gateway}
}

// NewReconcilerFromDB wires the reconciler with GORM repositories and the
// env-configured PIX client.
func NewReconcilerFromDB(db *gorm.DB) *Reconciler {
	return NewReconciler(NewRepository(db), NewPixClientFromEnv())
}

// SetNotifier installs the best-effort approval notification hook.
func (r *Reconciler) SetNotifier(fn func(p *models.Payment, tickets []models.Ticket)) {
	r.notify = fn
}

// HandleNotification processes one webhook delivery: record it for
// deduplication, re-query the gateway for the authoritative status and apply
// the transition.
func (r *Reconciler) HandleNotification(ctx context.Context, chargeID, eventID, rawPayload string) error {
	if strings.TrimSpace(chargeID) == "" {
		return errors.New("charge id missing in notification")
	}
	if strings.TrimSpace(eventID) == "" {
		sum := sha256.Sum256([]byte(rawPayload))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	created, stored, err := r.repo.CreateWebhookEventIfNotExists(&models.PaymentWebhookEvent{
		Provider:        "pix",
		ProviderEventID: eventID,
		TransactionID:   chargeID,
		PayloadJSON:     rawPayload,
	})
	if err != nil {
		return err
	}
	if !created && stored.ProcessedAt != nil {
		log.Infof("[Reconcile] duplicate webhook event %s for tx=%s, skipping", eventID, chargeID)
		return nil
	}

	charge, err := r.gateway.GetCharge(ctx, chargeID)
	if err != nil {
		_ = r.repo.MarkWebhookProcessed(stored.ID, err.Error())
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if err := r.OnStatusUpdate(chargeID, charge.Status); err != nil {
		_ = r.repo.MarkWebhookProcessed(stored.ID, err.Error())
		return err
	}
	return r.repo.MarkWebhookProcessed(stored.ID, "")
}

// OnStatusUpdate applies one gateway status to the local payment. Terminal
// payments ignore every further update; the conditional pending->terminal
// write guarantees only one caller performs the commit or release.
func (r *Reconciler) OnStatusUpdate(transactionID, gatewayStatus string) error {
	p, err := r.repo.GetByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Reconcile] notification for unknown transaction %s", transactionID)
			return ErrPaymentNotFound
		}
		return err
	}
	if p.IsTerminal() {
		log.Infof("[Reconcile] tx=%s already %s, ignoring %q notification", transactionID, p.Status, gatewayStatus)
		return nil
	}

	switch gatewayStatus {
	case ChargeStatusApproved:
		return r.approve(p)
	case ChargeStatusRejected, ChargeStatusCancelled, ChargeStatusRefunded, ChargeStatusChargedBack:
		return r.cancel(p)
	case ChargeStatusPending:
		return nil
	default:
		log.Warnf("[Reconcile] unknown gateway status %q for tx=%s, ignoring", gatewayStatus, transactionID)
		return nil
	}
}

func (r *Reconciler) approve(p *models.Payment) error {
	numbers := p.TicketNumbers()
	claimed, tickets, err := r.repo.ApproveAndCommit(p.TransactionID, p.RaffleID, p.UserID, numbers, p.HoldID)
	if err != nil {
		if errors.Is(err, ticketpool.ErrInvariant) {
			log.Errorf("[Reconcile] approval for tx=%s found numbers %v no longer held on raffle %d, payment left pending", p.TransactionID, numbers, p.RaffleID)
		}
		return err
	}
	if !claimed {
		// A concurrent delivery won the transition; it also owns the commit.
		return nil
	}

	log.Infof("[Reconcile] tx=%s approved, committed %d tickets on raffle %d", p.TransactionID, len(tickets), p.RaffleID)
	if r.notify != nil {
		p.Status = models.PAYMENT_STATUS_APPROVED
		r.notify(p, tickets)
	}
	return nil
}

func (r *Reconciler) cancel(p *models.Payment) error {
	numbers := p.TicketNumbers()
	claimed, err := r.repo.CancelAndRelease(p.TransactionID, models.PAYMENT_STATUS_CANCELLED, p.RaffleID, numbers, p.HoldID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	log.Infof("[Reconcile] tx=%s cancelled, released numbers %v on raffle %d", p.TransactionID, numbers, p.RaffleID)
	return nil
}

// CancelExpired is the expiry-driven fallback: pending payments whose hold
// lapsed past the cutoff without any gateway notification are cancelled and
// their numbers released. Returns how many payments were cancelled.
func (r *Reconciler) CancelExpired(cutoff time.Time) (int, error) {
	expired, err := r.repo.ListExpiredPending(cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range expired {
		p := &expired[i]
		claimed, err := r.repo.CancelAndRelease(p.TransactionID, models.PAYMENT_STATUS_CANCELLED, p.RaffleID, p.TicketNumbers(), p.HoldID)
		if err != nil {
			return cancelled, err
		}
		if !claimed {
			continue
		}
		cancelled++
		log.Infof("[Reconcile] expired pending tx=%s cancelled by sweep", p.TransactionID)
	}
	return cancelled, nil
}
