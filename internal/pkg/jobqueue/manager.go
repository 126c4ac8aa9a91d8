package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
)

// sweepTimeout bounds one stale-order sweep, including its provider calls.
const sweepTimeout = 2 * time.Minute

// Manager manages the global job queue and background tasks
type Manager struct {
	queue         *Queue
	reconciler    PaymentReconciler
	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(NewQueue(env.GetEnvInt("JOBQUEUE_WORKERS", 5)))
	})
	return globalManager
}

// NewManager wraps queue with the periodic stale-order sweep
func NewManager(queue *Queue) *Manager {
	return &Manager{
		queue:         queue,
		sweepInterval: env.GetEnvMinutes("STALE_ORDER_SWEEP_INTERVAL_MINUTES", 5),
		stopCh:        make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Bind connects the billing service to the sweep and the job processors.
// It must be called before Start.
func (m *Manager) Bind(reconciler PaymentReconciler, exporter PaymentExporter) {
	m.mu.Lock()
	m.reconciler = reconciler
	m.mu.Unlock()
	m.queue.Bind(reconciler, exporter)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.reconciler != nil && m.sweepInterval > 0 {
		m.sweepTicker = time.NewTicker(m.sweepInterval)
		m.wg.Add(1)
		go m.staleOrderWorker(m.reconciler, m.stopCh, m.sweepTicker)
	} else {
		log.Warn("[JobQueue Manager] No reconciler bound, stale order sweep disabled")
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks. It returns once a sweep
// that is already running has finished.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
		m.sweepTicker = nil
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// staleOrderWorker periodically fails or confirms orders stuck in pending
func (m *Manager) staleOrderWorker(reconciler PaymentReconciler, stopCh <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started stale order sweep (interval: %s)", m.sweepInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Stale order sweep stopping")
			return
		case <-ticker.C:
			if _, err := sweep(reconciler); err != nil {
				log.Errorf("[JobQueue Manager] Stale order sweep error: %v", err)
			}
		}
	}
}

// RunSweepOnce runs a single stale-order sweep and returns the number of
// orders it resolved.
func (m *Manager) RunSweepOnce() (int, error) {
	m.mu.Lock()
	reconciler := m.reconciler
	m.mu.Unlock()
	return sweep(reconciler)
}

func sweep(reconciler PaymentReconciler) (int, error) {
	if reconciler == nil {
		return 0, errNotBound
	}

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	return reconciler.SweepStaleOrders(ctx)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
