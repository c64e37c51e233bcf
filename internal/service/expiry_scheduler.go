package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"parking_lifecycle/internal/clock"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/metrics"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepTimeout  = 30 * time.Second
)

type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ExpiryScheduler frees reservations whose deadline has passed.
type ExpiryScheduler struct {
	lifecycle *SpaceLifecycleService
	clock     clock.Clock
	metrics   *metrics.Metrics
	interval  time.Duration
	timeout   time.Duration
}

func NewExpiryScheduler(lifecycle *SpaceLifecycleService, clk clock.Clock, m *metrics.Metrics, interval, timeout time.Duration) *ExpiryScheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	return &ExpiryScheduler{lifecycle: lifecycle, clock: clk, metrics: m, interval: interval, timeout: timeout}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (s *ExpiryScheduler) Start(ctx context.Context) error {
	log.Printf("ExpiryScheduler: sweeping every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			log.Println("ExpiryScheduler: context cancelled, stopping.")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *ExpiryScheduler) runOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.Sweep(sweepCtx)
	if err != nil {
		log.Printf("ExpiryScheduler: sweep failed: %v", err)
		return
	}
	if res.Scanned > 0 {
		log.Printf("ExpiryScheduler: scanned %d, expired %d, skipped %d, failed %d",
			res.Scanned, res.Expired, res.Skipped, res.Failed)
	}
}

// Sweep lists every reservation past its deadline and cancels each one with reason expired.
// A failure on one space is logged and counted; the rest of the batch still runs.
func (s *ExpiryScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	var res SweepResult

	expired, err := s.lifecycle.spaces.ListExpiredReservations(ctx, s.clock.Now())
	if err != nil {
		return res, fmt.Errorf("list expired reservations: %w", mapStoreError(err, ""))
	}
	res.Scanned = len(expired)

	for _, space := range expired {
		if err := ctx.Err(); err != nil {
			res.Failed += res.Scanned - res.Expired - res.Skipped - res.Failed
			log.Printf("ExpiryScheduler: sweep interrupted: %v", err)
			break
		}
		_, err := s.lifecycle.expireReservation(ctx, space.Number)
		switch {
		case err == nil:
			res.Expired++
		case errors.Is(err, domain.ErrNotReserved),
			errors.Is(err, errReservationNotExpired),
			errors.Is(err, domain.ErrSpaceNotFound):
			res.Skipped++
		default:
			res.Failed++
			log.Printf("ExpiryScheduler: could not expire reservation on space %s: %v", space.Number, err)
		}
	}

	s.metrics.ObserveSweep(res.Expired, res.Skipped, res.Failed, time.Since(started))
	if res.Expired > 0 {
		if _, err := s.lifecycle.Summary(ctx); err != nil {
			log.Printf("ExpiryScheduler: refreshing space gauge: %v", err)
		}
	}
	return res, nil
}
