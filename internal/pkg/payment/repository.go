package payment

import (
	"time"

	"github.com/rafflemaster/rafflemaster/app/models"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment service and the
// reconciler.
type Repository interface {
	CreatePayment(p *models.Payment) error
	GetByTransactionID(transactionID string) (*models.Payment, error)
	ListByUser(userID uint) ([]models.Payment, error)
	// ApproveAndCommit transitions a pending payment to approved and converts
	// its held slots into tickets in one DB transaction. Either both happen
	// or neither does. It reports whether this call won the transition; a
	// payment no longer pending is a no-op.
	ApproveAndCommit(transactionID string, raffleID, userID uint, numbers []int, holdID string) (bool, []models.Ticket, error)
	// CancelAndRelease transitions a pending payment to the given terminal
	// status and frees its held slots in the same DB transaction. Only slots
	// still owned by holdID are released.
	CancelAndRelease(transactionID, status string, raffleID uint, numbers []int, holdID string) (bool, error)
	ListExpiredPending(cutoff time.Time) ([]models.Payment, error)
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetByTransactionID(transactionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

// claimPendingTransition moves a payment out of pending with a conditional
// update so concurrent deliveries resolve to exactly one winner.
func claimPendingTransition(tx *gorm.DB, transactionID, status string) (bool, error) {
	res := tx.Model(&models.Payment{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.PAYMENT_STATUS_PENDING).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ApproveAndCommit(transactionID string, raffleID, userID uint, numbers []int, holdID string) (bool, []models.Ticket, error) {
	var claimed bool
	var tickets []models.Ticket
	err := r.db.Transaction(func(tx *gorm.DB) error {
		won, err := claimPendingTransition(tx, transactionID, models.PAYMENT_STATUS_APPROVED)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		claimed = true
		tickets, err = ticketpool.NewRepository(tx).Commit(raffleID, userID, numbers, holdID)
		return err
	})
	if err != nil {
		return false, nil, err
	}
	return claimed, tickets, nil
}

func (r *gormRepository) CancelAndRelease(transactionID, status string, raffleID uint, numbers []int, holdID string) (bool, error) {
	var claimed bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		won, err := claimPendingTransition(tx, transactionID, status)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		claimed = true
		return ticketpool.NewRepository(tx).Release(raffleID, numbers, holdID)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (r *gormRepository) ListExpiredPending(cutoff time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.
		Where("status = ? AND expires_at < ?", models.PAYMENT_STATUS_PENDING, cutoff).
		Find(&payments).Error
	return payments, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkWebhookProcessed records the outcome of one delivery attempt. Only a
// success sets processed_at; a failure keeps the event open so an identical
// redelivery is processed again instead of deduplicated away.
func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	updates := map[string]interface{}{
		"processing_error": processingError,
	}
	if processingError == "" {
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
