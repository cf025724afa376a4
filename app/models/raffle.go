package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Raffle is a prize draw with a fixed range of sellable ticket numbers
// (1..QuantityNumbers). Core fields are immutable after creation;
// WinningTicketID is written exactly once when a winner is drawn.
type Raffle struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	Name            string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Description     string         `gorm:"type:text" json:"description" validate:"max=2000"`
	ImageURL        string         `gorm:"type:varchar(255)" json:"image_url" validate:"max=255"`
	TicketPrice     float64        `gorm:"type:decimal(10,2);not null" json:"ticket_price" validate:"required,gt=0"`
	QuantityNumbers int            `gorm:"not null" json:"quantity_numbers" validate:"required,gt=0"`
	StartDate       time.Time      `gorm:"not null" json:"start_date"`
	EndDate         time.Time      `gorm:"not null" json:"end_date"`
	WinningTicketID *uint          `gorm:"default:null" json:"winning_ticket_id,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Raffle) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// IsClosed reports whether the raffle's sale window has ended.
func (r *Raffle) IsClosed(now time.Time) bool {
	return now.After(r.EndDate)
}

// HasWinner reports whether a winner was already drawn.
func (r *Raffle) HasWinner() bool {
	return r.WinningTicketID != nil
}
