package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflemaster/rafflemaster/app/models"
)

// pendingPurchase seeds the fakes with one pending payment holding numbers
// reserved in the pool, as Purchase would have left them.
func pendingPurchase(t *testing.T, slots *fakeSlotRepo, repo *fakePaymentRepo, transactionID string, numbers []int) *models.Payment {
	t.Helper()

	holdID := "hold-" + transactionID
	require.NoError(t, slots.Reserve(1, numbers, holdID, time.Now().Add(30*time.Minute)))

	p := &models.Payment{
		TransactionID: transactionID,
		HoldID:        holdID,
		UserID:        7,
		RaffleID:      1,
		Amount:        float64(len(numbers)),
		PayerEmail:    "buyer@example.com",
		PaymentMethod: "pix",
		Status:        models.PAYMENT_STATUS_PENDING,
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, p.SetTicketNumbers(numbers))
	require.NoError(t, repo.CreatePayment(p))
	return p
}

func newTestReconciler(repo *fakePaymentRepo, gateway *fakeGateway) *Reconciler {
	return NewReconciler(repo, gateway)
}

func TestOnStatusUpdate_ApprovedCommitsTickets(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})
	pendingPurchase(t, slots, repo, "tx-1", []int{3, 7, 11})

	var notified []models.Ticket
	rec.SetNotifier(func(p *models.Payment, tickets []models.Ticket) {
		notified = tickets
	})

	require.NoError(t, rec.OnStatusUpdate("tx-1", ChargeStatusApproved))

	assert.Equal(t, models.PAYMENT_STATUS_APPROVED, repo.statusOf("tx-1"))
	assert.Equal(t, 3, slots.countStatus(models.SLOT_STATUS_SOLD))
	assert.Equal(t, 0, slots.countStatus(models.SLOT_STATUS_RESERVED))
	require.Len(t, notified, 3)
	assert.Equal(t, uint(7), notified[0].UserID)
}

func TestOnStatusUpdate_ApprovedIsIdempotent(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})
	pendingPurchase(t, slots, repo, "tx-1", []int{3, 7, 11})

	require.NoError(t, rec.OnStatusUpdate("tx-1", ChargeStatusApproved))
	// Replays of the approval must not commit twice or error.
	require.NoError(t, rec.OnStatusUpdate("tx-1", ChargeStatusApproved))

	assert.Equal(t, 3, slots.countStatus(models.SLOT_STATUS_SOLD))
	assert.Len(t, slots.tickets, 3)
}

func TestOnStatusUpdate_CommitFailureLeavesPaymentRetryable(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})
	pendingPurchase(t, slots, repo, "tx-1", []int{1, 2, 3, 4, 5})

	// A transient storage error during the ticket commit must roll the whole
	// transition back. The payment stays pending, so a later replay of the
	// approval can finish the job.
	slots.commitErr = errors.New("db connection reset")
	err := rec.OnStatusUpdate("tx-1", ChargeStatusApproved)
	require.Error(t, err)

	assert.Equal(t, models.PAYMENT_STATUS_PENDING, repo.statusOf("tx-1"))
	assert.Equal(t, 0, slots.countStatus(models.SLOT_STATUS_SOLD))
	assert.Empty(t, slots.tickets)

	slots.commitErr = nil
	require.NoError(t, rec.OnStatusUpdate("tx-1", ChargeStatusApproved))

	assert.Equal(t, models.PAYMENT_STATUS_APPROVED, repo.statusOf("tx-1"))
	assert.Equal(t, 5, slots.countStatus(models.SLOT_STATUS_SOLD))
	assert.Len(t, slots.tickets, 5)
}

func TestOnStatusUpdate_RejectionReleasesNumbers(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})
	pendingPurchase(t, slots, repo, "tx-1", []int{2, 4})

	require.NoError(t, rec.OnStatusUpdate("tx-1", ChargeStatusRejected))

	assert.Equal(t, models.PAYMENT_STATUS_CANCELLED, repo.statusOf("tx-1"))
	assert.Equal(t, 20, slots.countStatus(models.SLOT_STATUS_FREE))
	assert.Empty(t, slots.tickets)
}

func TestOnStatusUpdate_TerminalStatuses(t *testing.T) {
	terminal := []string{ChargeStatusRejected, ChargeStatusCancelled, ChargeStatusRefunded, ChargeStatusChargedBack}

	for _, status := range terminal {
		slots := newFakeSlotRepo(10)
		repo := newFakePaymentRepo(slots)
		rec := newTestReconciler(repo, &fakeGateway{})
		pendingPurchase(t, slots, repo, "tx-1", []int{5})

		require.NoError(t, rec.OnStatusUpdate("tx-1", status), "status %s", status)
		assert.Equal(t, models.PAYMENT_STATUS_CANCELLED, repo.statusOf("tx-1"), "status %s", status)
		assert.Equal(t, 10, slots.countStatus(models.SLOT_STATUS_FREE), "status %s", status)
	}
}

func TestOnStatusUpdate_PendingAndUnknownAreNoOps(t *testing.T) {
	slots := newFakeSlotRepo(10)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})
	pendingPurchase(t, slots, repo, "tx-1", []int{5})

	require.NoError(t, rec.OnStatusUpdate("tx-1", ChargeStatusPending))
	require.NoError(t, rec.OnStatusUpdate("tx-1", "in_mediation"))

	assert.Equal(t, models.PAYMENT_STATUS_PENDING, repo.statusOf("tx-1"))
	assert.Equal(t, 1, slots.countStatus(models.SLOT_STATUS_RESERVED))
}

func TestOnStatusUpdate_UnknownTransaction(t *testing.T) {
	rec := newTestReconciler(newFakePaymentRepo(newFakeSlotRepo(10)), &fakeGateway{})

	err := rec.OnStatusUpdate("no-such-tx", ChargeStatusApproved)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestHandleNotification_QueriesGatewayAndApplies(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	gateway := &fakeGateway{getStatus: map[string]string{"tx-1": ChargeStatusApproved}}
	rec := newTestReconciler(repo, gateway)
	pendingPurchase(t, slots, repo, "tx-1", []int{1, 2})

	require.NoError(t, rec.HandleNotification(context.Background(), "tx-1", "evt-1", `{"data":{"id":"tx-1"}}`))

	assert.Equal(t, 1, gateway.getCalls)
	assert.Equal(t, models.PAYMENT_STATUS_APPROVED, repo.statusOf("tx-1"))
	assert.Equal(t, 2, slots.countStatus(models.SLOT_STATUS_SOLD))
}

func TestHandleNotification_DuplicateEventSkipsGateway(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	gateway := &fakeGateway{getStatus: map[string]string{"tx-1": ChargeStatusApproved}}
	rec := newTestReconciler(repo, gateway)
	pendingPurchase(t, slots, repo, "tx-1", []int{1, 2})

	payload := `{"data":{"id":"tx-1"}}`
	require.NoError(t, rec.HandleNotification(context.Background(), "tx-1", "evt-1", payload))
	require.NoError(t, rec.HandleNotification(context.Background(), "tx-1", "evt-1", payload))

	assert.Equal(t, 1, gateway.getCalls)
	assert.Len(t, slots.tickets, 2)
}

func TestHandleNotification_FailedDeliveryIsReprocessed(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	gateway := &fakeGateway{
		getFailures: 1,
		getStatus:   map[string]string{"tx-1": ChargeStatusApproved},
	}
	rec := newTestReconciler(repo, gateway)
	pendingPurchase(t, slots, repo, "tx-1", []int{1, 2})

	// The first delivery dies on the gateway lookup. An identical redelivery
	// carries no event id either, so it lands on the same payload hash and
	// must still be processed rather than skipped as a duplicate.
	payload := `{"data":{"id":"tx-1"}}`
	err := rec.HandleNotification(context.Background(), "tx-1", "", payload)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, models.PAYMENT_STATUS_PENDING, repo.statusOf("tx-1"))

	require.NoError(t, rec.HandleNotification(context.Background(), "tx-1", "", payload))

	assert.Equal(t, 2, gateway.getCalls)
	assert.Equal(t, models.PAYMENT_STATUS_APPROVED, repo.statusOf("tx-1"))
	assert.Equal(t, 2, slots.countStatus(models.SLOT_STATUS_SOLD))
}

func TestHandleNotification_MissingEventIDFallsBackToPayloadHash(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	gateway := &fakeGateway{getStatus: map[string]string{"tx-1": ChargeStatusApproved}}
	rec := newTestReconciler(repo, gateway)
	pendingPurchase(t, slots, repo, "tx-1", []int{1})

	payload := `{"data":{"id":"tx-1"}}`
	require.NoError(t, rec.HandleNotification(context.Background(), "tx-1", "", payload))
	require.NoError(t, rec.HandleNotification(context.Background(), "tx-1", "", payload))

	// Identical payloads hash to the same event id and deduplicate.
	assert.Equal(t, 1, gateway.getCalls)
}

func TestHandleNotification_MissingChargeID(t *testing.T) {
	rec := newTestReconciler(newFakePaymentRepo(newFakeSlotRepo(10)), &fakeGateway{})

	err := rec.HandleNotification(context.Background(), "  ", "evt-1", "{}")
	assert.Error(t, err)
}

func TestCancelExpired(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})

	pendingPurchase(t, slots, repo, "tx-old", []int{1, 2})
	repo.mu.Lock()
	repo.payments["tx-old"].ExpiresAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()

	pendingPurchase(t, slots, repo, "tx-fresh", []int{3})

	cancelled, err := rec.CancelExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	assert.Equal(t, models.PAYMENT_STATUS_CANCELLED, repo.statusOf("tx-old"))
	assert.Equal(t, models.PAYMENT_STATUS_PENDING, repo.statusOf("tx-fresh"))
	assert.Equal(t, 1, slots.countStatus(models.SLOT_STATUS_RESERVED))
}

func TestCancelExpired_SparesReassignedNumbers(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})

	// The first buyer's hold on {1, 2} lapses and the numbers go back to the
	// pool; a second buyer then reserves number 1 under a live hold.
	pendingPurchase(t, slots, repo, "tx-old", []int{1, 2})
	repo.mu.Lock()
	repo.payments["tx-old"].ExpiresAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()
	slots.mu.Lock()
	for _, n := range []int{1, 2} {
		slots.slots[n].status = models.SLOT_STATUS_FREE
		slots.slots[n].holdID = ""
		slots.slots[n].reservedUntil = nil
	}
	slots.mu.Unlock()

	pendingPurchase(t, slots, repo, "tx-new", []int{1})

	// Cancelling the lapsed payment must not free the number the second
	// buyer now holds.
	cancelled, err := rec.CancelExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, models.PAYMENT_STATUS_CANCELLED, repo.statusOf("tx-old"))
	assert.Equal(t, 1, slots.countStatus(models.SLOT_STATUS_RESERVED))

	require.NoError(t, rec.OnStatusUpdate("tx-new", ChargeStatusApproved))
	assert.Equal(t, models.PAYMENT_STATUS_APPROVED, repo.statusOf("tx-new"))
	assert.Equal(t, 1, slots.countStatus(models.SLOT_STATUS_SOLD))
}

func TestOnStatusUpdate_LateCancellationSparesReassignedNumbers(t *testing.T) {
	slots := newFakeSlotRepo(20)
	repo := newFakePaymentRepo(slots)
	rec := newTestReconciler(repo, &fakeGateway{})

	pendingPurchase(t, slots, repo, "tx-old", []int{4})
	slots.mu.Lock()
	slots.slots[4].status = models.SLOT_STATUS_FREE
	slots.slots[4].holdID = ""
	slots.slots[4].reservedUntil = nil
	slots.mu.Unlock()

	pendingPurchase(t, slots, repo, "tx-new", []int{4})

	// A rejection webhook arriving after the number moved on only touches
	// the payment record.
	require.NoError(t, rec.OnStatusUpdate("tx-old", ChargeStatusRejected))
	assert.Equal(t, models.PAYMENT_STATUS_CANCELLED, repo.statusOf("tx-old"))
	assert.Equal(t, 1, slots.countStatus(models.SLOT_STATUS_RESERVED))
}
