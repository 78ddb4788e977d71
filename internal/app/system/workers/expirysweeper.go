// internal/app/system/workers/expirysweeper.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Expirer marks overdue emergency requests expired. Implemented by
// requeststore.Store and requeststore.Memory.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// ExpirySweeper is a background worker that closes emergency requests whose
// hard expiry has passed. It is a safety net behind the lazy expiry check
// in the response path: a request nobody touches still gets closed.
type ExpirySweeper struct {
	requests Expirer
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewExpirySweeper creates an expiry sweeper that runs every interval.
func NewExpirySweeper(requests Expirer, logger *zap.Logger, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		requests: requests,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *ExpirySweeper) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("expiry sweeper started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *ExpirySweeper) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("expiry sweeper stopped")
}

func (w *ExpirySweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *ExpirySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := w.requests.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		w.log.Error("failed to expire overdue requests", zap.Error(err))
		return
	}

	if count > 0 {
		w.log.Info("expired overdue emergency requests", zap.Int64("count", count))
	}
}
