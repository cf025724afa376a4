package repository

import (
	"github.com/rafflemaster/rafflemaster/app/models"
	"gorm.io/gorm"
)

// raffleRepository implements the RaffleRepository interface
type raffleRepository struct {
	db *gorm.DB
}

// NewRaffleRepository creates a new raffle repository instance
func NewRaffleRepository(db *gorm.DB) RaffleRepository {
	return &raffleRepository{db: db}
}

// Create creates a new raffle in the database
func (r *raffleRepository) Create(raffle *models.Raffle) error {
	return r.db.Create(raffle).Error
}

// GetByID retrieves a raffle by its ID
func (r *raffleRepository) GetByID(id uint) (*models.Raffle, error) {
	var raffle models.Raffle
	err := r.db.First(&raffle, id).Error
	if err != nil {
		return nil, err
	}
	return &raffle, nil
}

// List retrieves a paginated list of raffles, newest first
func (r *raffleRepository) List(offset, limit int) ([]models.Raffle, error) {
	var raffles []models.Raffle
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&raffles).Error
	return raffles, err
}

// Count returns the total number of raffles
func (r *raffleRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Raffle{}).Count(&count).Error
	return count, err
}

// SetWinningTicket writes the winner only if none is recorded yet. The
// conditional update makes a second draw lose the race instead of silently
// overwriting the first winner.
func (r *raffleRepository) SetWinningTicket(raffleID, ticketID uint) (bool, error) {
	tx := r.db.Model(&models.Raffle{}).
		Where("id = ? AND winning_ticket_id IS NULL", raffleID).
		Update("winning_ticket_id", ticketID)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
