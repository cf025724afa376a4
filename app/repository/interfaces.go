package repository

import (
	"github.com/rafflemaster/rafflemaster/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
}

// RaffleRepository defines the interface for raffle-related database operations
type RaffleRepository interface {
	Create(raffle *models.Raffle) error
	GetByID(id uint) (*models.Raffle, error)
	List(offset, limit int) ([]models.Raffle, error)
	Count() (int64, error)
	// SetWinningTicket records the winner exactly once; it reports false when
	// the raffle already has a winner.
	SetWinningTicket(raffleID, ticketID uint) (bool, error)
}

// TicketRepository defines the interface for committed-ticket reads
type TicketRepository interface {
	GetByID(id uint) (*models.Ticket, error)
	ListByRaffle(raffleID uint) ([]models.Ticket, error)
	ListByUser(userID uint) ([]models.Ticket, error)
	CountByRaffle(raffleID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User   UserRepository
	Raffle RaffleRepository
	Ticket TicketRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:   NewUserRepository(db),
		Raffle: NewRaffleRepository(db),
		Ticket: NewTicketRepository(db),
	}
}
