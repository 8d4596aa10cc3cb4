package metrics

import (
	"context"
	"fmt"
	"time"
)

/* StoreCollector gathers pipeline metrics from the delivery store and the
 * dispatch queue. Consumers depend on the narrow interfaces below, not on
 * the concrete postgres/redis types.
 */

// DeliveryStats is the slice of the delivery store the collector reads
type DeliveryStats interface {
	StatusCounts(ctx context.Context) (map[string]int64, error)
	DeliveredSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// QueueStats is the slice of the dispatch queue the collector reads
type QueueStats interface {
	Length(ctx context.Context) (int64, error)
}

// WorkerStats reports dispatch worker liveness
type WorkerStats interface {
	ActiveWorkers(ctx context.Context) ([]WorkerInfo, error)
}

type StoreCollector struct {
	deliveries DeliveryStats
	queue      QueueStats
	workers    WorkerStats
	now        func() time.Time
}

// NewStoreCollector creates a collector. queue and workers may be nil when
// the process has no queue connection (e.g. tests).
func NewStoreCollector(deliveries DeliveryStats, queue QueueStats, workers WorkerStats) *StoreCollector {
	return &StoreCollector{
		deliveries: deliveries,
		queue:      queue,
		workers:    workers,
		now:        time.Now,
	}
}

// Collect gathers current metrics from the system
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, err
	}

	queueLength, err := c.GetQueueLength(ctx)
	if err != nil {
		return Metrics{}, err
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, err
	}

	workers, err := c.GetActiveWorkers(ctx)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		QueueLength:  queueLength,
		StatusCounts: statusCounts,
		Throughput:   throughput,
		Workers:      workers,
		Timestamp:    c.now(),
	}, nil
}

// GetQueueLength returns the number of queued dispatch entries
func (c *StoreCollector) GetQueueLength(ctx context.Context) (int64, error) {
	if c.queue == nil {
		return 0, nil
	}
	n, err := c.queue.Length(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading queue length: %w", err)
	}
	return n, nil
}

// GetStatusCounts returns the count of deliveries by status
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := c.deliveries.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading status counts: %w", err)
	}
	return counts, nil
}

// GetThroughput returns deliveries completed over time windows
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.now()

	var out ThroughputMetrics
	windows := []struct {
		d    time.Duration
		dest *int64
	}{
		{1 * time.Minute, &out.LastMinute},
		{5 * time.Minute, &out.LastFiveMinutes},
		{15 * time.Minute, &out.LastFifteenMinutes},
	}

	for _, w := range windows {
		n, err := c.deliveries.DeliveredSince(ctx, now.Add(-w.d))
		if err != nil {
			return ThroughputMetrics{}, fmt.Errorf("reading throughput: %w", err)
		}
		*w.dest = n
	}

	return out, nil
}

// GetActiveWorkers returns the currently active dispatch workers
func (c *StoreCollector) GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error) {
	if c.workers == nil {
		return []WorkerInfo{}, nil
	}
	workers, err := c.workers.ActiveWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading active workers: %w", err)
	}
	return workers, nil
}
