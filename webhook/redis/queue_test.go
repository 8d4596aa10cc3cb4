package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQueueWithClient(client), mr
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue then consume yields the delivery id", func(t *testing.T) {
		q, _ := setupQueue(t)

		require.NoError(t, q.Enqueue(ctx, "del-1"))

		ids, err := q.Consume(ctx, "worker-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"del-1"}, ids)
	})

	t.Run("consume drains in order up to the batch size", func(t *testing.T) {
		q, _ := setupQueue(t)

		for _, id := range []string{"del-1", "del-2", "del-3"} {
			require.NoError(t, q.Enqueue(ctx, id))
		}

		ids, err := q.Consume(ctx, "worker-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"del-1", "del-2", "del-3"}, ids)
	})

	t.Run("consumed ids are not redelivered to other consumers", func(t *testing.T) {
		q, _ := setupQueue(t)

		require.NoError(t, q.Enqueue(ctx, "del-1"))

		ids, err := q.Consume(ctx, "worker-1")
		require.NoError(t, err)
		require.Len(t, ids, 1)

		ids, err = q.Consume(ctx, "worker-2")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("ack is idempotent", func(t *testing.T) {
		q, _ := setupQueue(t)

		require.NoError(t, q.Enqueue(ctx, "del-1"))
		_, err := q.Consume(ctx, "worker-1")
		require.NoError(t, err)

		require.NoError(t, q.Ack(ctx, "worker-1", "del-1"))
		require.NoError(t, q.Ack(ctx, "worker-1", "del-1"))
	})

	t.Run("ack of never-consumed id is a no-op", func(t *testing.T) {
		q, _ := setupQueue(t)
		require.NoError(t, q.Ack(ctx, "worker-1", "ghost"))
	})

	t.Run("length reflects enqueued entries", func(t *testing.T) {
		q, _ := setupQueue(t)

		require.NoError(t, q.Enqueue(ctx, "del-1"))
		require.NoError(t, q.Enqueue(ctx, "del-2"))

		n, err := q.Length(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestHeartbeat(t *testing.T) {
	ctx := context.Background()

	t.Run("active workers reports beating workers", func(t *testing.T) {
		q, _ := setupQueue(t)

		require.NoError(t, q.Heartbeat(ctx, "worker-1", "idle"))
		require.NoError(t, q.Heartbeat(ctx, "worker-2", "processing"))

		workers, err := q.ActiveWorkers(ctx)
		require.NoError(t, err)
		require.Len(t, workers, 2)

		byID := make(map[string]WorkerHeartbeat)
		for _, w := range workers {
			byID[w.WorkerID] = w
		}
		assert.Equal(t, "idle", byID["worker-1"].Status)
		assert.Equal(t, "processing", byID["worker-2"].Status)
		assert.WithinDuration(t, time.Now(), byID["worker-1"].LastHeartbeat, 5*time.Second)
	})

	t.Run("expired heartbeats drop out of the active set", func(t *testing.T) {
		q, mr := setupQueue(t)

		require.NoError(t, q.Heartbeat(ctx, "worker-1", "idle"))

		mr.FastForward(61 * time.Second)

		workers, err := q.ActiveWorkers(ctx)
		require.NoError(t, err)
		assert.Empty(t, workers)
	})

	t.Run("refreshed heartbeat overwrites status", func(t *testing.T) {
		q, _ := setupQueue(t)

		require.NoError(t, q.Heartbeat(ctx, "worker-1", "idle"))
		require.NoError(t, q.Heartbeat(ctx, "worker-1", "processing"))

		workers, err := q.ActiveWorkers(ctx)
		require.NoError(t, err)
		require.Len(t, workers, 1)
		assert.Equal(t, "processing", workers[0].Status)
	})
}
