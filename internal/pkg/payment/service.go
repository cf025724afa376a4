package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/app/repository"
	"github.com/rafflemaster/rafflemaster/internal/pkg/env"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
	"gorm.io/gorm"
)

// Service drives a ticket purchase end to end: validate the raffle window,
// reserve numbers, request the external charge and persist the pending
// payment. It owns the compensating release when anything past the
// reservation fails.
type Service struct {
	repo       Repository
	raffles    repository.RaffleRepository
	pool       *ticketpool.Service
	gateway    GatewayClient
	holdWindow time.Duration
}

// NewService creates a payment service from injected collaborators.
func NewService(repo Repository, raffles repository.RaffleRepository, pool *ticketpool.Service, gateway GatewayClient, holdWindow time.Duration) *Service {
	return &Service{
		repo:       repo,
		raffles:    raffles,
		pool:       pool,
		gateway:    gateway,
		holdWindow: holdWindow,
	}
}

// NewServiceFromDB wires the payment service with GORM repositories and the
// env-configured PIX client.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		NewRepository(db),
		repository.NewRaffleRepository(db),
		ticketpool.NewServiceFromDB(db),
		NewPixClientFromEnv(),
		HoldWindowFromEnv(),
	)
}

// HoldWindowFromEnv reads the reservation hold duration from
// TICKET_HOLD_MINUTES (default 30).
func HoldWindowFromEnv() time.Duration {
	minutes, err := strconv.Atoi(env.GetEnv("TICKET_HOLD_MINUTES", "30"))
	if err != nil || minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

// Pool exposes the ticket pool service the orchestrator was wired with.
func (s *Service) Pool() *ticketpool.Service {
	return s.pool
}

// Repo exposes the payment repository for read-side callers.
func (s *Service) Repo() Repository {
	return s.repo
}

// Purchase reserves quantity numbers on the raffle, creates a PIX charge for
// them and records the pending payment. The returned payment stays pending;
// approval arrives asynchronously through the reconciler.
//
// Once numbers are reserved, every failure path releases them before the
// error is returned. A failed purchase must never leave numbers stuck.
func (s *Service) Purchase(ctx context.Context, raffleID, userID uint, payerEmail string, quantity int) (*models.Payment, []int, error) {
	raffle, err := s.raffles.GetByID(raffleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRaffleNotFound
		}
		return nil, nil, err
	}

	now := time.Now()
	if raffle.IsClosed(now) {
		return nil, nil, ErrRaffleClosed
	}

	// The hold token is minted before the reservation because the gateway
	// transaction id does not exist yet. It names the owner of the reserved
	// slots and doubles as the charge idempotency key.
	holdID := uuid.NewString()

	holdUntil := now.Add(s.holdWindow)
	numbers, err := s.pool.AllocateAndReserve(raffleID, quantity, holdID, holdUntil)
	if err != nil {
		return nil, nil, err
	}

	amount := float64(quantity) * raffle.TicketPrice

	charge, err := s.gateway.CreateCharge(ctx, CreateChargeRequest{
		Amount:         amount,
		Description:    raffle.Description,
		PayerEmail:     payerEmail,
		ExpiresAt:      holdUntil,
		IdempotencyKey: holdID,
	})
	if err != nil {
		if releaseErr := s.pool.Release(raffleID, numbers, holdID); releaseErr != nil {
			log.Errorf("[Payment] failed to release numbers %v on raffle %d after gateway error: %v", numbers, raffleID, releaseErr)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	p := &models.Payment{
		TransactionID: charge.ID,
		HoldID:        holdID,
		UserID:        userID,
		RaffleID:      raffleID,
		Amount:        amount,
		PayerEmail:    payerEmail,
		PaymentMethod: "pix",
		Status:        models.PAYMENT_STATUS_PENDING,
		PayURL:        charge.PayURL,
		ExpiresAt:     holdUntil,
	}
	if err := p.SetTicketNumbers(numbers); err != nil {
		if releaseErr := s.pool.Release(raffleID, numbers, holdID); releaseErr != nil {
			log.Errorf("[Payment] failed to release numbers %v on raffle %d: %v", numbers, raffleID, releaseErr)
		}
		return nil, nil, err
	}
	if err := s.repo.CreatePayment(p); err != nil {
		if releaseErr := s.pool.Release(raffleID, numbers, holdID); releaseErr != nil {
			log.Errorf("[Payment] failed to release numbers %v on raffle %d after persist error: %v", numbers, raffleID, releaseErr)
		}
		return nil, nil, err
	}

	log.Infof("[Payment] created pending payment tx=%s raffle=%d user=%d numbers=%v", p.TransactionID, raffleID, userID, numbers)
	return p, numbers, nil
}

// ListByUser returns the payments created by a user, newest first.
func (s *Service) ListByUser(userID uint) ([]models.Payment, error) {
	return s.repo.ListByUser(userID)
}
