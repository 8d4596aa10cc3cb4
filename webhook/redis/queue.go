package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

/* Redis Streams implementation of webhook.Queue
 * A single stream with a consumer group fans delivery ids out to the
 * dispatch workers; unacked entries stay pending in the group until a
 * worker acknowledges them.
 */

const (
	streamKey = "dispatch:deliveries"
	groupName = "dispatch-workers"

	// message id keys let Ack find the stream entry for a delivery
	msgIDPrefix = "dispatch:msgid"

	consumeBlock = 1 * time.Second
	consumeCount = 10
)

type Queue struct {
	client *redis.Client
}

// NewQueue connects a dispatch queue to the given Redis server
func NewQueue(addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// NewQueueWithClient wraps an existing client, used by tests with miniredis
func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue submits a delivery id for asynchronous dispatch
func (q *Queue) Enqueue(ctx context.Context, deliveryID string) error {
	// idempotent when the group already exists
	q.client.XGroupCreateMkStream(ctx, streamKey, groupName, "0")

	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{"delivery_id": deliveryID},
	}).Result()
	if err != nil {
		return fmt.Errorf("adding to stream: %w", err)
	}
	return nil
}

// Consume reads up to a batch of delivery ids for the named consumer
func (q *Queue) Consume(ctx context.Context, consumer string) ([]string, error) {
	q.client.XGroupCreateMkStream(ctx, streamKey, groupName, "0")

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumer,
		Streams:  []string{streamKey, ">"},
		Count:    consumeCount,
		Block:    consumeBlock,
	}).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	if len(streams) == 0 {
		return []string{}, nil
	}

	var ids []string
	for _, msg := range streams[0].Messages {
		deliveryID, ok := msg.Values["delivery_id"].(string)
		if !ok {
			continue
		}

		// remember the stream entry so Ack can find it
		msgIDKey := fmt.Sprintf("%s:%s", msgIDPrefix, deliveryID)
		q.client.Set(ctx, msgIDKey, msg.ID, 24*time.Hour)

		ids = append(ids, deliveryID)
	}

	return ids, nil
}

// Ack marks a consumed delivery id as processed
func (q *Queue) Ack(ctx context.Context, consumer, deliveryID string) error {
	msgIDKey := fmt.Sprintf("%s:%s", msgIDPrefix, deliveryID)

	msgID, err := q.client.Get(ctx, msgIDKey).Result()
	if err == redis.Nil {
		// already acknowledged or expired
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting message ID: %w", err)
	}

	if err := q.client.XAck(ctx, streamKey, groupName, msgID).Err(); err != nil {
		return fmt.Errorf("acknowledging message: %w", err)
	}

	q.client.Del(ctx, msgIDKey)
	return nil
}

// Length returns the number of entries currently on the stream
func (q *Queue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.XLen(ctx, streamKey).Result()
	if err != nil {
		return 0, fmt.Errorf("reading stream length: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}
