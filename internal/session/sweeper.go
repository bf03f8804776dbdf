package session

import (
	"context"
	"time"

	"github.com/kraemahz/subseq-util/internal/logger"
)

// Sweeper periodically removes expired session records so the table does
// not accumulate dead rows between validations.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := s.manager.SweepExpired(ctx)
			cancel()
			if err != nil {
				logger.Error("session sweep failed", map[string]any{
					"error": err.Error(),
				})
				continue
			}
			if n > 0 {
				logger.Info("swept expired sessions", map[string]any{
					"count": n,
				})
			}
		}
	}
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
