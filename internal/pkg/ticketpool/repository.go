package ticketpool

import (
	"time"

	"github.com/rafflemaster/rafflemaster/app/models"
	"gorm.io/gorm"
)

// Repository provides the slot-state DB operations used by the pool service.
// Every mutation runs as one transaction bounded to the affected rows with
// conditional status predicates, so concurrent writers resolve as ErrConflict
// instead of partial updates.
type Repository interface {
	SeedSlots(raffleID uint, quantityNumbers int) error
	CountFree(raffleID uint) (int64, error)
	FreeNumbers(raffleID uint) ([]int, error)
	Reserve(raffleID uint, numbers []int, holdID string, holdUntil time.Time) error
	Release(raffleID uint, numbers []int, holdID string) error
	Commit(raffleID, userID uint, numbers []int, holdID string) ([]models.Ticket, error)
	ReclaimExpired(now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ticket pool repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

const seedBatchSize = 500

func (r *gormRepository) SeedSlots(raffleID uint, quantityNumbers int) error {
	slots := make([]models.RaffleSlot, 0, quantityNumbers)
	for n := 1; n <= quantityNumbers; n++ {
		slots = append(slots, models.RaffleSlot{
			RaffleID: raffleID,
			Number:   n,
			Status:   models.SLOT_STATUS_FREE,
		})
	}
	return r.db.CreateInBatches(&slots, seedBatchSize).Error
}

func (r *gormRepository) CountFree(raffleID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.RaffleSlot{}).
		Where("raffle_id = ? AND status = ?", raffleID, models.SLOT_STATUS_FREE).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) FreeNumbers(raffleID uint) ([]int, error) {
	var numbers []int
	err := r.db.Model(&models.RaffleSlot{}).
		Where("raffle_id = ? AND status = ?", raffleID, models.SLOT_STATUS_FREE).
		Order("number ASC").
		Pluck("number", &numbers).Error
	return numbers, err
}

// Reserve moves the whole number set free->reserved or none of it, recording
// the hold that owns the reservation. The update only touches rows still
// free; a row count short of the request means a competing writer got there
// first and the transaction rolls back.
func (r *gormRepository) Reserve(raffleID uint, numbers []int, holdID string, holdUntil time.Time) error {
	if len(numbers) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RaffleSlot{}).
			Where("raffle_id = ? AND number IN ? AND status = ?", raffleID, numbers, models.SLOT_STATUS_FREE).
			Updates(map[string]interface{}{
				"status":         models.SLOT_STATUS_RESERVED,
				"hold_id":        holdID,
				"reserved_until": holdUntil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(numbers)) {
			return ErrConflict
		}
		return nil
	})
}

// Release returns reserved numbers to the pool. Only rows still held by the
// given hold are touched, so a stale release cannot free a number another
// payment has since reserved, and replays are harmless.
func (r *gormRepository) Release(raffleID uint, numbers []int, holdID string) error {
	if len(numbers) == 0 {
		return nil
	}
	return r.db.Model(&models.RaffleSlot{}).
		Where("raffle_id = ? AND number IN ? AND status = ? AND hold_id = ?",
			raffleID, numbers, models.SLOT_STATUS_RESERVED, holdID).
		Updates(map[string]interface{}{
			"status":         models.SLOT_STATUS_FREE,
			"hold_id":        "",
			"reserved_until": nil,
		}).Error
}

// Commit converts reserved numbers to sold and creates the owned tickets in
// the same transaction. Only rows still held by the given hold qualify; a
// slot no longer under that hold means the reservation lapsed and was taken
// over, and the whole commit rolls back.
func (r *gormRepository) Commit(raffleID, userID uint, numbers []int, holdID string) ([]models.Ticket, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	tickets := make([]models.Ticket, 0, len(numbers))
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RaffleSlot{}).
			Where("raffle_id = ? AND number IN ? AND status = ? AND hold_id = ?",
				raffleID, numbers, models.SLOT_STATUS_RESERVED, holdID).
			Updates(map[string]interface{}{
				"status":         models.SLOT_STATUS_SOLD,
				"hold_id":        "",
				"reserved_until": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(numbers)) {
			return ErrInvariant
		}
		for _, n := range numbers {
			tickets = append(tickets, models.Ticket{
				RaffleID: raffleID,
				UserID:   userID,
				Number:   n,
			})
		}
		return tx.Create(&tickets).Error
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *gormRepository) ReclaimExpired(now time.Time) (int64, error) {
	res := r.db.Model(&models.RaffleSlot{}).
		Where("status = ? AND reserved_until IS NOT NULL AND reserved_until < ?", models.SLOT_STATUS_RESERVED, now).
		Updates(map[string]interface{}{
			"status":         models.SLOT_STATUS_FREE,
			"hold_id":        "",
			"reserved_until": nil,
		})
	return res.RowsAffected, res.Error
}
