package ticketpool

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/internal/pkg/env"
	"gorm.io/gorm"
)

// reserveAttempts bounds the allocate/reserve retry loop. Conflicts past the
// bound are treated as the pool being effectively drained.
const reserveAttempts = 3

// Service owns raffle slot state. It is the only component allowed to move
// slots between free, reserved and sold.
type Service struct {
	repo  Repository
	steps []int
}

// NewService creates a ticket pool service from an injected repository and
// the allowed purchase increments.
func NewService(repo Repository, steps []int) *Service {
	if len(steps) == 0 {
		steps = []int{1, 5, 10, 20}
	}
	return &Service{repo: repo, steps: steps}
}

// NewServiceFromDB creates a ticket pool service from a GORM DB handle with
// increments taken from TICKET_QUANTITY_STEPS.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), StepsFromEnv())
}

// StepsFromEnv parses TICKET_QUANTITY_STEPS (comma separated) into purchase
// increments, falling back to 1,5,10,20.
func StepsFromEnv() []int {
	raw := env.GetEnv("TICKET_QUANTITY_STEPS", "1,5,10,20")
	var steps []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v <= 0 {
			log.Warnf("[TicketPool] ignoring invalid quantity step %q", part)
			continue
		}
		steps = append(steps, v)
	}
	return steps
}

// AllowedQuantity reports whether quantity is a configured increment.
func (s *Service) AllowedQuantity(quantity int) bool {
	for _, step := range s.steps {
		if quantity == step {
			return true
		}
	}
	return false
}

// CountFree returns the number of free slots for a raffle.
func (s *Service) CountFree(raffleID uint) (int64, error) {
	return s.repo.CountFree(raffleID)
}

// Seed creates the free slot range 1..quantityNumbers for a new raffle.
func (s *Service) Seed(raffleID uint, quantityNumbers int) error {
	return s.repo.SeedSlots(raffleID, quantityNumbers)
}

// AllocateAndReserve picks quantity free numbers pseudo-randomly and reserves
// them for holdID until holdUntil. The reserve is all-or-nothing; on a
// conflict the free set is re-read and the pick retried up to
// reserveAttempts times.
func (s *Service) AllocateAndReserve(raffleID uint, quantity int, holdID string, holdUntil time.Time) ([]int, error) {
	if !s.AllowedQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	for attempt := 1; attempt <= reserveAttempts; attempt++ {
		free, err := s.repo.FreeNumbers(raffleID)
		if err != nil {
			return nil, err
		}
		if len(free) < quantity {
			return nil, ErrInsufficientInventory
		}

		rand.Shuffle(len(free), func(i, j int) {
			free[i], free[j] = free[j], free[i]
		})
		picked := free[:quantity]

		err = s.repo.Reserve(raffleID, picked, holdID, holdUntil)
		if err == nil {
			return picked, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		log.Infof("[TicketPool] reserve conflict on raffle %d (attempt %d/%d), retrying", raffleID, attempt, reserveAttempts)
	}

	return nil, ErrInsufficientInventory
}

// Release returns reserved numbers to the pool after a failed or cancelled
// payment. Only slots still held by holdID are affected.
func (s *Service) Release(raffleID uint, numbers []int, holdID string) error {
	return s.repo.Release(raffleID, numbers, holdID)
}

// Commit converts reserved numbers into owned tickets for userID. It requires
// the slots to still be reserved under holdID; free->sold is never allowed.
func (s *Service) Commit(raffleID, userID uint, numbers []int, holdID string) ([]models.Ticket, error) {
	return s.repo.Commit(raffleID, userID, numbers, holdID)
}

// ReclaimExpired frees every reserved slot whose hold has lapsed and returns
// how many were reclaimed.
func (s *Service) ReclaimExpired(now time.Time) (int64, error) {
	return s.repo.ReclaimExpired(now)
}
