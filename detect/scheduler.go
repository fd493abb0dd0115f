package detect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs evaluation cycles on a fixed interval. Each cycle gets a
// deadline of one interval so a slow cycle cannot pile up behind the next.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(engine *Engine, interval time.Duration, logger *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the evaluation loop. Safe to call once; subsequent calls
// are no-ops until Stop.
func (s *Scheduler) Start(parentCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
	s.logger.Infow("Evaluation scheduler started", "interval", s.interval)
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Evaluation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycleCtx, cancel := context.WithTimeout(ctx, s.interval)
			if _, err := s.engine.EvaluateAll(cycleCtx); err != nil {
				s.logger.Errorw("Evaluation cycle failed", "error", err)
			}
			cancel()
		}
	}
}
