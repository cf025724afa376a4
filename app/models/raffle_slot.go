package models

import "time"

const (
	SLOT_STATUS_FREE     = "free"
	SLOT_STATUS_RESERVED = "reserved"
	SLOT_STATUS_SOLD     = "sold"
)

// RaffleSlot is one sellable ticket number within a raffle's range.
// (RaffleID, Number) is the natural key. A slot is free, held by a pending
// payment (reserved, with an expiry and the owning hold token), or
// permanently sold. All transitions run as conditional updates so two
// writers can never both claim a number, and release/commit are scoped to
// the hold that owns the reservation.
type RaffleSlot struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	RaffleID      uint       `gorm:"not null;index:ux_raffle_slots_raffle_number,unique,priority:1" json:"raffle_id"`
	Number        int        `gorm:"not null;index:ux_raffle_slots_raffle_number,unique,priority:2" json:"number"`
	Status        string     `gorm:"type:varchar(16);not null;default:'free';index" json:"status"`
	HoldID        string     `gorm:"type:varchar(100);not null;default:'';index" json:"-"`
	ReservedUntil *time.Time `gorm:"type:timestamp;default:null;index" json:"reserved_until,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether a reserved slot's hold has lapsed.
func (s *RaffleSlot) IsExpired(now time.Time) bool {
	return s.Status == SLOT_STATUS_RESERVED && s.ReservedUntil != nil && now.After(*s.ReservedUntil)
}
