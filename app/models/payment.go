package models

import (
	"encoding/json"
	"time"
)

const (
	PAYMENT_STATUS_PENDING   = "pending"
	PAYMENT_STATUS_APPROVED  = "approved"
	PAYMENT_STATUS_CANCELLED = "cancelled"
	PAYMENT_STATUS_REJECTED  = "rejected"
	PAYMENT_STATUS_REFUNDED  = "refunded"
)

// Payment links an external PIX charge to the ticket numbers it holds.
// It is created pending and moves to exactly one terminal state, driven
// only by payment reconciliation.
type Payment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"transaction_id"`
	HoldID        string    `gorm:"type:varchar(100);not null;default:''" json:"-"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	RaffleID      uint      `gorm:"not null;index" json:"raffle_id"`
	Amount        float64   `gorm:"type:decimal(10,2);not null" json:"amount"`
	PayerEmail    string    `gorm:"type:varchar(200);not null" json:"payer_email"`
	PaymentMethod string    `gorm:"type:varchar(30);not null;default:'pix'" json:"payment_method"`
	Status        string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	NumbersJSON   string    `gorm:"column:ticket_numbers;type:text;not null" json:"-"`
	PayURL        string    `gorm:"type:varchar(500)" json:"pay_url"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status != PAYMENT_STATUS_PENDING
}

// TicketNumbers decodes the reserved/sold numbers held by this payment.
func (p *Payment) TicketNumbers() []int {
	if p.NumbersJSON == "" {
		return nil
	}
	var numbers []int
	if err := json.Unmarshal([]byte(p.NumbersJSON), &numbers); err != nil {
		return nil
	}
	return numbers
}

// SetTicketNumbers encodes the reserved numbers for storage.
func (p *Payment) SetTicketNumbers(numbers []int) error {
	raw, err := json.Marshal(numbers)
	if err != nil {
		return err
	}
	p.NumbersJSON = string(raw)
	return nil
}

// MarshalJSON exposes ticket numbers as a plain array in API responses.
func (p Payment) MarshalJSON() ([]byte, error) {
	type alias Payment
	return json.Marshal(struct {
		alias
		TicketNumbers []int `json:"ticket_numbers"`
	}{
		alias:         alias(p),
		TicketNumbers: p.TicketNumbers(),
	})
}
