package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Processor is the sweep body the scheduler drives on every tick.
type Processor interface {
	ProcessDue(ctx context.Context) error
}

// Scheduler runs one recurring background sweep. Delivery precision is
// bounded by the interval, which is acceptable for deferred messages.
type Scheduler struct {
	processor Processor
	interval  time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

var ErrAlreadyRunning = errors.New("scheduler already running")

var ErrNotRunning = errors.New("scheduler not running")

func New(processor Processor, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "scheduler ", log.LstdFlags)
	}
	return &Scheduler{processor: processor, interval: interval, logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	if ctx == nil {
		ctx = context.Background()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	go s.run(loopCtx)
	s.logger.Println("scheduler started")

	return nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	s.cancel()
	s.running = false
	s.logger.Println("scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if err := s.processor.ProcessDue(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Printf("scheduler sweep failed: %v", err)
	}
}
