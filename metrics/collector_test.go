package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/fleetgrid/webhooks/metrics"
	"github.com/fleetgrid/webhooks/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticQueue struct{ length int64 }

func (q staticQueue) Length(ctx context.Context) (int64, error) { return q.length, nil }

type staticWorkers struct{ workers []metrics.WorkerInfo }

func (w staticWorkers) ActiveWorkers(ctx context.Context) ([]metrics.WorkerInfo, error) {
	return w.workers, nil
}

func seedDeliveries(t *testing.T, deliveries *webhook.MemoryDeliveries) {
	t.Helper()
	ctx := context.Background()

	add := func(id string, status webhook.Status, test bool) {
		require.NoError(t, deliveries.CreateDelivery(ctx, webhook.Delivery{
			ID:          id,
			EndpointID:  "ep-1",
			EventType:   "load.created",
			Payload:     []byte(`{}`),
			Status:      status,
			MaxAttempts: 5,
			Test:        test,
			CreatedAt:   time.Now(),
		}))
	}

	add("d1", webhook.Delivered, false)
	add("d2", webhook.Delivered, false)
	add("d3", webhook.Failed, false)
	add("d4", webhook.Retrying, false)
	add("d5", webhook.Delivered, true) // test delivery, excluded everywhere
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	deliveries := webhook.NewMemoryDeliveries()
	seedDeliveries(t, deliveries)

	collector := metrics.NewStoreCollector(deliveries, staticQueue{length: 7}, staticWorkers{
		workers: []metrics.WorkerInfo{
			{WorkerID: "w-1", Status: "idle", LastHeartbeat: time.Now()},
		},
	})

	m, err := collector.Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(7), m.QueueLength)
	assert.Equal(t, int64(2), m.StatusCounts["delivered"])
	assert.Equal(t, int64(1), m.StatusCounts["failed"])
	assert.Equal(t, int64(1), m.StatusCounts["retrying"])
	assert.NotContains(t, m.StatusCounts, "pending")
	assert.Equal(t, int64(2), m.Throughput.LastMinute)
	require.Len(t, m.Workers, 1)
	assert.Equal(t, "w-1", m.Workers[0].WorkerID)
	assert.False(t, m.Timestamp.IsZero())
}

func TestCollectWithoutQueue(t *testing.T) {
	ctx := context.Background()

	deliveries := webhook.NewMemoryDeliveries()
	collector := metrics.NewStoreCollector(deliveries, nil, nil)

	m, err := collector.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.QueueLength)
	assert.Empty(t, m.Workers)
}
