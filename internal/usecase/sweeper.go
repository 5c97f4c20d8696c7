package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often background maintenance runs.
const DefaultSweepInterval = 60 * time.Second

// SweepJob is one periodic maintenance task. Run returns how many entries it removed.
type SweepJob struct {
	Name string
	Run  func() int
}

// Sweeper runs maintenance jobs on a fixed interval, independent of request goroutines.
type Sweeper struct {
	interval time.Duration
	jobs     []SweepJob
	logger   *zap.Logger
}

// NewSweeper constructs a sweeper. Non-positive intervals use DefaultSweepInterval.
func NewSweeper(interval time.Duration, logger *zap.Logger, jobs ...SweepJob) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{interval: interval, jobs: jobs, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce executes every job a single time.
func (s *Sweeper) RunOnce() {
	for _, job := range s.jobs {
		if job.Run == nil {
			continue
		}
		if n := job.Run(); n > 0 {
			s.logger.Debug("sweep job removed entries", zap.String("job", job.Name), zap.Int("count", n))
		}
	}
}
