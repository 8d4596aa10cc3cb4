package webhook

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

/* Scheduler resubmits due retries to the dispatch queue. It is a
 * polling due-set scan: every tick it selects retrying deliveries whose
 * next_retry_at has elapsed and enqueues them. The scan is advisory; the
 * dispatcher's claim makes it safe to run from multiple processes, since
 * only one worker can win the pending/retrying -> delivering transition.
 *
 * Each poll also sweeps stale claims: a delivering row untouched for
 * longer than the claim TTL belongs to a worker that died mid-dispatch,
 * and is reverted to retrying so the delivery is not stranded.
 */
type Scheduler struct {
	deliveries DeliveryRepository
	queue      Queue
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// SchedulerConfig configures the retry poll loop
type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	/* ClaimTTL is how long a delivering claim may sit untouched before
	 * the sweep reclaims it. Must comfortably exceed the dispatch
	 * timeout, or a slow but live attempt could be double-dispatched.
	 */
	ClaimTTL time.Duration
}

// NewScheduler creates a retry scheduler
func NewScheduler(deliveries DeliveryRepository, queue Queue, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 4 * DispatchTimeout
	}
	return &Scheduler{
		deliveries: deliveries,
		queue:      queue,
		interval:   cfg.PollInterval,
		batchSize:  cfg.BatchSize,
		claimTTL:   cfg.ClaimTTL,
		now:        time.Now,
	}
}

// Start begins the retry polling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	log.Printf("retry scheduler starting (poll interval: %s)", s.interval)

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop gracefully stops the retry polling loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("retry scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				log.Printf("retry poll failed: %v", err)
			}
		}
	}
}

// Poll runs one stale-claim sweep and one due-set scan, and returns the
// number of deliveries resubmitted for dispatch
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	stale, err := s.deliveries.ReleaseStale(ctx, s.now().Add(-s.claimTTL), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("sweeping stale claims: %w", err)
	}
	if len(stale) > 0 {
		log.Printf("reclaimed %d delivery claim(s) from dead workers", len(stale))
	}

	due, err := s.deliveries.DueRetries(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("scanning due retries: %w", err)
	}

	// reclaimed deliveries are due immediately, so the scan sees them too
	swept := make(map[string]struct{}, len(stale))
	for _, id := range stale {
		swept[id] = struct{}{}
	}

	enqueued := 0
	for _, id := range stale {
		if err := s.queue.Enqueue(ctx, id); err != nil {
			return enqueued, fmt.Errorf("enqueueing retry %s: %w", id, err)
		}
		enqueued++
	}
	for _, id := range due {
		if _, ok := swept[id]; ok {
			continue
		}
		if err := s.queue.Enqueue(ctx, id); err != nil {
			return enqueued, fmt.Errorf("enqueueing retry %s: %w", id, err)
		}
		enqueued++
	}

	return enqueued, nil
}
