package payment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
)

// fakeSlotRepo backs the ticket pool service with an in-memory slot store for
// one raffle. It enforces the same hold-scoped transition rules as the GORM
// repository.
type fakeSlotRepo struct {
	mu      sync.Mutex
	slots   map[int]*fakeSlot
	tickets []models.Ticket

	// commitErr fails the next Commit calls until cleared, simulating a
	// transient storage error mid-approval.
	commitErr error
}

type fakeSlot struct {
	status        string
	holdID        string
	reservedUntil *time.Time
}

func newFakeSlotRepo(quantityNumbers int) *fakeSlotRepo {
	r := &fakeSlotRepo{slots: make(map[int]*fakeSlot)}
	_ = r.SeedSlots(1, quantityNumbers)
	return r
}

func (r *fakeSlotRepo) SeedSlots(raffleID uint, quantityNumbers int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n := 1; n <= quantityNumbers; n++ {
		r.slots[n] = &fakeSlot{status: models.SLOT_STATUS_FREE}
	}
	return nil
}

func (r *fakeSlotRepo) CountFree(raffleID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, s := range r.slots {
		if s.status == models.SLOT_STATUS_FREE {
			count++
		}
	}
	return count, nil
}

func (r *fakeSlotRepo) FreeNumbers(raffleID uint) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var numbers []int
	for n, s := range r.slots {
		if s.status == models.SLOT_STATUS_FREE {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (r *fakeSlotRepo) Reserve(raffleID uint, numbers []int, holdID string, holdUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range numbers {
		if s, ok := r.slots[n]; !ok || s.status != models.SLOT_STATUS_FREE {
			return ticketpool.ErrConflict
		}
	}
	for _, n := range numbers {
		until := holdUntil
		r.slots[n].status = models.SLOT_STATUS_RESERVED
		r.slots[n].holdID = holdID
		r.slots[n].reservedUntil = &until
	}
	return nil
}

func (r *fakeSlotRepo) Release(raffleID uint, numbers []int, holdID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range numbers {
		if s, ok := r.slots[n]; ok && s.status == models.SLOT_STATUS_RESERVED && s.holdID == holdID {
			s.status = models.SLOT_STATUS_FREE
			s.holdID = ""
			s.reservedUntil = nil
		}
	}
	return nil
}

func (r *fakeSlotRepo) Commit(raffleID, userID uint, numbers []int, holdID string) ([]models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return nil, r.commitErr
	}
	for _, n := range numbers {
		if s, ok := r.slots[n]; !ok || s.status != models.SLOT_STATUS_RESERVED || s.holdID != holdID {
			return nil, ticketpool.ErrInvariant
		}
	}
	tickets := make([]models.Ticket, 0, len(numbers))
	for _, n := range numbers {
		r.slots[n].status = models.SLOT_STATUS_SOLD
		r.slots[n].holdID = ""
		r.slots[n].reservedUntil = nil
		tickets = append(tickets, models.Ticket{
			ID:       uint(len(r.tickets) + len(tickets) + 1),
			RaffleID: raffleID,
			UserID:   userID,
			Number:   n,
		})
	}
	r.tickets = append(r.tickets, tickets...)
	return tickets, nil
}

func (r *fakeSlotRepo) ReclaimExpired(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reclaimed int64
	for _, s := range r.slots {
		if s.status == models.SLOT_STATUS_RESERVED && s.reservedUntil != nil && s.reservedUntil.Before(now) {
			s.status = models.SLOT_STATUS_FREE
			s.holdID = ""
			s.reservedUntil = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (r *fakeSlotRepo) countStatus(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.slots {
		if s.status == status {
			count++
		}
	}
	return count
}

// fakePaymentRepo is an in-memory Repository keyed by transaction id. It
// shares the slot store so the approve and cancel transitions can mirror the
// all-or-nothing behavior of the GORM transaction: a failed slot mutation
// leaves the payment status untouched.
type fakePaymentRepo struct {
	mu       sync.Mutex
	slots    *fakeSlotRepo
	payments map[string]*models.Payment
	events   map[string]*models.PaymentWebhookEvent
	nextID   uint

	createErr error
}

func newFakePaymentRepo(slots *fakeSlotRepo) *fakePaymentRepo {
	return &fakePaymentRepo{
		slots:    slots,
		payments: make(map[string]*models.Payment),
		events:   make(map[string]*models.PaymentWebhookEvent),
	}
}

func (r *fakePaymentRepo) CreatePayment(p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	p.ID = r.nextID
	clone := *p
	r.payments[p.TransactionID] = &clone
	return nil
}

func (r *fakePaymentRepo) GetByTransactionID(transactionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePaymentRepo) ListByUser(userID uint) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ApproveAndCommit(transactionID string, raffleID, userID uint, numbers []int, holdID string) (bool, []models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok || p.Status != models.PAYMENT_STATUS_PENDING {
		return false, nil, nil
	}
	tickets, err := r.slots.Commit(raffleID, userID, numbers, holdID)
	if err != nil {
		return false, nil, err
	}
	p.Status = models.PAYMENT_STATUS_APPROVED
	return true, tickets, nil
}

func (r *fakePaymentRepo) CancelAndRelease(transactionID, status string, raffleID uint, numbers []int, holdID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok || p.Status != models.PAYMENT_STATUS_PENDING {
		return false, nil
	}
	if err := r.slots.Release(raffleID, numbers, holdID); err != nil {
		return false, err
	}
	p.Status = status
	return true, nil
}

func (r *fakePaymentRepo) ListExpiredPending(cutoff time.Time) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Status == models.PAYMENT_STATUS_PENDING && p.ExpiresAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		clone := *stored
		return false, &clone, nil
	}
	r.nextID++
	event.ID = r.nextID
	clone := *event
	r.events[key] = &clone
	out := clone
	return true, &out, nil
}

func (r *fakePaymentRepo) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			ev.ProcessingError = processingError
			if processingError == "" {
				now := time.Now()
				ev.ProcessedAt = &now
			}
		}
	}
	return nil
}

func (r *fakePaymentRepo) statusOf(transactionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payments[transactionID].Status
}

// fakeRaffleRepo serves a fixed raffle set.
type fakeRaffleRepo struct {
	raffles map[uint]*models.Raffle
}

func (r *fakeRaffleRepo) Create(raffle *models.Raffle) error { return nil }

func (r *fakeRaffleRepo) GetByID(id uint) (*models.Raffle, error) {
	raffle, ok := r.raffles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *raffle
	return &clone, nil
}

func (r *fakeRaffleRepo) List(offset, limit int) ([]models.Raffle, error) { return nil, nil }

func (r *fakeRaffleRepo) Count() (int64, error) { return int64(len(r.raffles)), nil }

func (r *fakeRaffleRepo) SetWinningTicket(raffleID, ticketID uint) (bool, error) { return false, nil }

// fakeGateway scripts charge creation and status lookups.
type fakeGateway struct {
	mu sync.Mutex

	createErr   error
	nextCharge  Charge
	createCalls int

	getStatus map[string]string
	getErr    error
	getCalls  int

	// getFailures fails that many GetCharge calls before lookups succeed.
	getFailures int
}

func (g *fakeGateway) CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	charge := g.nextCharge
	return &charge, nil
}

func (g *fakeGateway) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getFailures > 0 {
		g.getFailures--
		return nil, errors.New("gateway unavailable")
	}
	if g.getErr != nil {
		return nil, g.getErr
	}
	return &Charge{ID: chargeID, Status: g.getStatus[chargeID]}, nil
}

func openRaffle(id uint, price float64) *models.Raffle {
	return &models.Raffle{
		ID:              id,
		Name:            "Test Raffle",
		TicketPrice:     price,
		QuantityNumbers: 100,
		StartDate:       time.Now().Add(-time.Hour),
		EndDate:         time.Now().Add(time.Hour),
	}
}

func newTestService(slots *fakeSlotRepo, repo *fakePaymentRepo, raffles *fakeRaffleRepo, gateway *fakeGateway) *Service {
	pool := ticketpool.NewService(slots, []int{1, 5, 10, 20})
	return NewService(repo, raffles, pool, gateway, 30*time.Minute)
}

func TestPurchase_CreatesPendingPayment(t *testing.T) {
	slots := newFakeSlotRepo(100)
	repo := newFakePaymentRepo(slots)
	raffles := &fakeRaffleRepo{raffles: map[uint]*models.Raffle{1: openRaffle(1, 2.50)}}
	gateway := &fakeGateway{nextCharge: Charge{ID: "tx-1", PayURL: "https://pay.example/tx-1", Status: ChargeStatusPending}}

	svc := newTestService(slots, repo, raffles, gateway)

	p, numbers, err := svc.Purchase(context.Background(), 1, 7, "buyer@example.com", 10)
	require.NoError(t, err)
	require.Len(t, numbers, 10)

	assert.Equal(t, "tx-1", p.TransactionID)
	assert.Equal(t, models.PAYMENT_STATUS_PENDING, p.Status)
	assert.Equal(t, 25.0, p.Amount)
	assert.Equal(t, "https://pay.example/tx-1", p.PayURL)
	assert.ElementsMatch(t, numbers, p.TicketNumbers())

	stored, err := repo.GetByTransactionID("tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.PAYMENT_STATUS_PENDING, stored.Status)
	assert.NotEmpty(t, stored.HoldID)
	assert.Equal(t, 10, slots.countStatus(models.SLOT_STATUS_RESERVED))
}

func TestPurchase_RaffleNotFound(t *testing.T) {
	slots := newFakeSlotRepo(10)
	svc := newTestService(slots, newFakePaymentRepo(slots), &fakeRaffleRepo{raffles: map[uint]*models.Raffle{}}, &fakeGateway{})

	_, _, err := svc.Purchase(context.Background(), 99, 7, "buyer@example.com", 1)
	assert.ErrorIs(t, err, ErrRaffleNotFound)
}

func TestPurchase_RaffleClosed(t *testing.T) {
	closed := openRaffle(1, 1.0)
	closed.EndDate = time.Now().Add(-time.Minute)
	slots := newFakeSlotRepo(10)
	svc := newTestService(slots, newFakePaymentRepo(slots), &fakeRaffleRepo{raffles: map[uint]*models.Raffle{1: closed}}, &fakeGateway{})

	_, _, err := svc.Purchase(context.Background(), 1, 7, "buyer@example.com", 1)
	assert.ErrorIs(t, err, ErrRaffleClosed)
}

func TestPurchase_InvalidQuantity(t *testing.T) {
	slots := newFakeSlotRepo(10)
	svc := newTestService(slots, newFakePaymentRepo(slots), &fakeRaffleRepo{raffles: map[uint]*models.Raffle{1: openRaffle(1, 1.0)}}, &fakeGateway{})

	_, _, err := svc.Purchase(context.Background(), 1, 7, "buyer@example.com", 3)
	assert.ErrorIs(t, err, ticketpool.ErrInvalidQuantity)
}

func TestPurchase_GatewayFailureReleasesReservation(t *testing.T) {
	slots := newFakeSlotRepo(100)
	repo := newFakePaymentRepo(slots)
	raffles := &fakeRaffleRepo{raffles: map[uint]*models.Raffle{1: openRaffle(1, 1.0)}}
	gateway := &fakeGateway{createErr: errors.New("gateway timeout")}

	svc := newTestService(slots, repo, raffles, gateway)

	_, _, err := svc.Purchase(context.Background(), 1, 7, "buyer@example.com", 10)
	require.ErrorIs(t, err, ErrUpstream)

	// The compensating release must leave no numbers stuck.
	assert.Equal(t, 0, slots.countStatus(models.SLOT_STATUS_RESERVED))
	assert.Equal(t, 100, slots.countStatus(models.SLOT_STATUS_FREE))
	assert.Empty(t, repo.payments)
}

func TestPurchase_PersistFailureReleasesReservation(t *testing.T) {
	slots := newFakeSlotRepo(100)
	repo := newFakePaymentRepo(slots)
	repo.createErr = errors.New("db write failed")
	raffles := &fakeRaffleRepo{raffles: map[uint]*models.Raffle{1: openRaffle(1, 1.0)}}
	gateway := &fakeGateway{nextCharge: Charge{ID: "tx-1", Status: ChargeStatusPending}}

	svc := newTestService(slots, repo, raffles, gateway)

	_, _, err := svc.Purchase(context.Background(), 1, 7, "buyer@example.com", 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 0, slots.countStatus(models.SLOT_STATUS_RESERVED))
}

func TestHoldWindowFromEnv(t *testing.T) {
	t.Setenv("TICKET_HOLD_MINUTES", "15")
	assert.Equal(t, 15*time.Minute, HoldWindowFromEnv())

	t.Setenv("TICKET_HOLD_MINUTES", "not-a-number")
	assert.Equal(t, 30*time.Minute, HoldWindowFromEnv())
}
