package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 5 * time.Minute

// SweeperService periodically repairs ledger records stuck in the
// "verifying" state after an interrupted flight.
type SweeperService struct {
	verifier *VerificationService
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSweeperService(verifier *VerificationService, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		verifier: verifier,
		logger:   logger,
		interval: defaultSweepInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("ledger sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("ledger sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *SweeperService) run(ctx context.Context) {
	repaired, err := s.verifier.Sweep(ctx)
	if err != nil {
		s.logger.Error("failed to sweep stale verifications", zap.Error(err))
		return
	}
	if repaired > 0 {
		s.logger.Info("repaired stale verifications", zap.Int("count", repaired))
	}
}
