package raffledraw

import (
	"errors"
	"math/rand"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/app/repository"
	"gorm.io/gorm"
)

var (
	// ErrRaffleNotFound is returned when the raffle does not exist.
	ErrRaffleNotFound = errors.New("raffle not found")

	// ErrNoTicketsSold is returned when the raffle has no committed tickets
	// to draw from.
	ErrNoTicketsSold = errors.New("no tickets sold for this raffle")

	// ErrAlreadyDrawn is returned when the raffle already has a recorded
	// winner. Re-draws are a hard error, never an overwrite.
	ErrAlreadyDrawn = errors.New("raffle winner already drawn")
)

// Service draws one winner uniformly at random from a raffle's committed
// tickets and records it exactly once.
type Service struct {
	raffles repository.RaffleRepository
	tickets repository.TicketRepository
}

// NewService creates a winner draw service from injected repositories.
func NewService(raffles repository.RaffleRepository, tickets repository.TicketRepository) *Service {
	return &Service{raffles: raffles, tickets: tickets}
}

// NewServiceFromDB creates a winner draw service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewRaffleRepository(db), repository.NewTicketRepository(db))
}

// DrawWinner picks a uniform random committed ticket and writes it to the
// raffle. The conditional winner write makes a concurrent second draw fail
// with ErrAlreadyDrawn instead of replacing the recorded winner.
func (s *Service) DrawWinner(raffleID uint) (*models.Ticket, error) {
	raffle, err := s.raffles.GetByID(raffleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRaffleNotFound
		}
		return nil, err
	}
	if raffle.HasWinner() {
		return nil, ErrAlreadyDrawn
	}

	tickets, err := s.tickets.ListByRaffle(raffleID)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, ErrNoTicketsSold
	}

	winner := tickets[rand.Intn(len(tickets))]

	recorded, err := s.raffles.SetWinningTicket(raffleID, winner.ID)
	if err != nil {
		return nil, err
	}
	if !recorded {
		return nil, ErrAlreadyDrawn
	}

	log.Infof("[Draw] raffle %d winner is ticket %d (number %d)", raffleID, winner.ID, winner.Number)
	return &winner, nil
}
