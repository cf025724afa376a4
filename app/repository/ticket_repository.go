package repository

import (
	"github.com/rafflemaster/rafflemaster/app/models"
	"gorm.io/gorm"
)

// ticketRepository implements the TicketRepository interface
type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository creates a new ticket repository instance
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

// GetByID retrieves a committed ticket by its ID
func (r *ticketRepository) GetByID(id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.First(&ticket, id).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListByRaffle retrieves all committed tickets for a raffle
func (r *ticketRepository) ListByRaffle(raffleID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("raffle_id = ?", raffleID).Order("number ASC").Find(&tickets).Error
	return tickets, err
}

// ListByUser retrieves all committed tickets owned by a user
func (r *ticketRepository) ListByUser(userID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&tickets).Error
	return tickets, err
}

// CountByRaffle returns the number of committed tickets for a raffle
func (r *ticketRepository) CountByRaffle(raffleID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Ticket{}).Where("raffle_id = ?", raffleID).Count(&count).Error
	return count, err
}
