package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the delivery pipeline.
// Test deliveries are excluded from every figure.
type Metrics struct {
	// QueueLength is the number of entries on the dispatch queue
	QueueLength int64 `json:"queue_length"`

	// StatusCounts maps delivery status to the number of deliveries in it
	StatusCounts map[string]int64 `json:"status_counts"`

	// Throughput represents deliveries completed per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// Workers lists the currently active dispatch workers
	Workers []WorkerInfo `json:"workers"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents deliveries completed over time windows.
type ThroughputMetrics struct {
	LastMinute         int64 `json:"last_minute"`
	LastFiveMinutes    int64 `json:"last_five_minutes"`
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// WorkerInfo represents an active dispatch worker.
type WorkerInfo struct {
	WorkerID      string    `json:"worker_id"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Collector defines the interface for collecting delivery pipeline metrics.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetQueueLength returns the number of queued dispatch entries
	GetQueueLength(ctx context.Context) (int64, error)

	// GetStatusCounts returns the count of deliveries by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)

	// GetThroughput returns deliveries completed over time windows
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)

	// GetActiveWorkers returns the currently active dispatch workers
	GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error)
}
