package models

import "time"

// Ticket is a committed, owned ticket number. Rows are created only when a
// payment is approved and are never updated afterwards.
type Ticket struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RaffleID  uint      `gorm:"not null;index:ux_tickets_raffle_number,unique,priority:1" json:"raffle_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Number    int       `gorm:"not null;index:ux_tickets_raffle_number,unique,priority:2" json:"number"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
