package sweeper

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rafflemaster/rafflemaster/internal/pkg/env"
	"github.com/rafflemaster/rafflemaster/internal/pkg/payment"
	"github.com/rafflemaster/rafflemaster/internal/pkg/ticketpool"
	"gorm.io/gorm"
)

// graceWindow is how long past its hold expiry a pending payment may linger
// before the sweep cancels it. Gives a slow gateway notification time to win.
// Slot reclamation honors the same window, so an approval arriving inside it
// still finds its numbers reserved.
const graceWindow = 5 * time.Minute

// Manager runs the background reservation sweep: expired holds go back to
// free, and pending payments that never received a terminal notification are
// cancelled. This bounds how long any slot can sit in limbo.
type Manager struct {
	pool       *ticketpool.Service
	reconciler *payment.Reconciler

	ticker   *time.Ticker
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global sweep manager, creating it on first use.
func GetManager(db *gorm.DB) *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			pool:       ticketpool.NewServiceFromDB(db),
			reconciler: payment.NewReconcilerFromDB(db),
			interval:   IntervalFromEnv(),
		}
	})
	return globalManager
}

// NewManager creates a sweep manager from injected collaborators.
func NewManager(pool *ticketpool.Service, reconciler *payment.Reconciler, interval time.Duration) *Manager {
	return &Manager{pool: pool, reconciler: reconciler, interval: interval}
}

// IntervalFromEnv reads the sweep interval from SWEEP_INTERVAL_SECONDS
// (default 60).
func IntervalFromEnv() time.Duration {
	seconds, err := strconv.Atoi(env.GetEnv("SWEEP_INTERVAL_SECONDS", "60"))
	if err != nil || seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Start launches the background sweep worker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.worker()

	log.Infof("[Sweeper] Started (interval: %s)", m.interval)
}

// Stop halts the sweep worker and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.ticker.Stop()
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	log.Info("[Sweeper] Stopped")
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			log.Info("[Sweeper] Worker stopping")
			return
		case <-m.ticker.C:
			m.SweepOnce(time.Now())
		}
	}
}

// SweepOnce performs one sweep pass. Pending payments whose hold expired
// longer than the grace window ago are cancelled first, which releases their
// slots through the owning payment. The pool reclaim afterwards uses the same
// cutoff and only catches holds that never got a payment row.
func (m *Manager) SweepOnce(now time.Time) {
	cutoff := now.Add(-graceWindow)

	cancelled, err := m.reconciler.CancelExpired(cutoff)
	if err != nil {
		log.Errorf("[Sweeper] expired payment cancel failed: %v", err)
	} else if cancelled > 0 {
		log.Infof("[Sweeper] cancelled %d expired pending payments", cancelled)
	}

	reclaimed, err := m.pool.ReclaimExpired(cutoff)
	if err != nil {
		log.Errorf("[Sweeper] reclaim failed: %v", err)
	} else if reclaimed > 0 {
		log.Infof("[Sweeper] reclaimed %d orphaned reservations", reclaimed)
	}
}
