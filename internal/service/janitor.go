package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CodeSweeper is implemented by AuthService.
type CodeSweeper interface {
	SweepExpiredCodes(ctx context.Context) (int64, error)
}

// CodeJanitor periodically removes stale login codes so the table stays
// small even when nobody requests new codes.
type CodeJanitor struct {
	sweeper  CodeSweeper
	interval time.Duration
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewCodeJanitor(sweeper CodeSweeper, interval time.Duration, logger *slog.Logger) *CodeJanitor {
	return &CodeJanitor{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Calling it again is a no-op.
func (j *CodeJanitor) Start() {
	j.startOnce.Do(func() {
		j.logger.Info("starting auth code janitor", slog.Duration("interval", j.interval))
		j.wg.Add(1)
		go j.run()
	})
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (j *CodeJanitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		j.logger.Info("auth code janitor stopped")
	})
}

func (j *CodeJanitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *CodeJanitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.sweeper.SweepExpiredCodes(ctx)
	if err != nil {
		j.logger.Error("auth code sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		j.logger.Debug("auth codes swept", slog.Int64("deleted", n))
	}
}
