package webhook_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fleetgrid/webhooks/events"
	"github.com/fleetgrid/webhooks/webhook"
	"github.com/fleetgrid/webhooks/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	endpoints  *webhook.MemoryEndpoints
	deliveries *webhook.MemoryDeliveries
	queue      *webhook.MemoryQueue
	service    *webhook.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	endpoints := webhook.NewMemoryEndpoints()
	deliveries := webhook.NewMemoryDeliveries()
	queue := webhook.NewMemoryQueue()
	catalog := events.Default()
	router := webhook.NewRouter(endpoints, deliveries, queue, catalog, webhook.DefaultMaxAttempts)

	return &serviceFixture{
		endpoints:  endpoints,
		deliveries: deliveries,
		queue:      queue,
		service:    webhook.NewService(endpoints, deliveries, queue, router, catalog, webhook.DefaultMaxAttempts),
	}
}

func validEndpoint() webhook.Endpoint {
	return webhook.Endpoint{
		TenantID:    "tenant-1",
		URL:         "https://example.com/hooks",
		Events:      []string{"load.created", "invoice.paid"},
		Active:      true,
		Description: "ops receiver",
	}
}

func TestCreateEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("success - secret generated and returned once", func(t *testing.T) {
		f := newServiceFixture(t)

		e, secret, err := f.service.CreateEndpoint(ctx, validEndpoint(), "")
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		assert.True(t, strings.HasPrefix(secret, signature.SecretPrefix))

		// fetching back never exposes the secret
		got, err := f.service.GetEndpoint(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.URL, got.URL)
	})

	t.Run("success - provided secret is kept", func(t *testing.T) {
		f := newServiceFixture(t)

		provided, err := signature.GenerateSecret()
		require.NoError(t, err)

		e, secret, err := f.service.CreateEndpoint(ctx, validEndpoint(), provided.String())
		require.NoError(t, err)
		assert.Equal(t, provided.String(), secret)

		stored, err := f.endpoints.GetSecret(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, provided.Bytes(), stored.Bytes())
	})

	t.Run("error - invalid url", func(t *testing.T) {
		f := newServiceFixture(t)

		e := validEndpoint()
		e.URL = "not-a-url"
		_, _, err := f.service.CreateEndpoint(ctx, e, "")
		require.ErrorIs(t, err, webhook.ErrInvalidEndpoint)
		assert.Contains(t, err.Error(), "validating endpoint")
	})

	t.Run("error - no subscribed events", func(t *testing.T) {
		f := newServiceFixture(t)

		e := validEndpoint()
		e.Events = nil
		_, _, err := f.service.CreateEndpoint(ctx, e, "")
		require.ErrorIs(t, err, webhook.ErrInvalidEndpoint)
	})

	t.Run("error - event type not in catalog", func(t *testing.T) {
		f := newServiceFixture(t)

		e := validEndpoint()
		e.Events = []string{"load.created", "warp.engaged"}
		_, _, err := f.service.CreateEndpoint(ctx, e, "")
		require.ErrorIs(t, err, webhook.ErrUnknownEventType)
	})

	t.Run("error - malformed provided secret", func(t *testing.T) {
		f := newServiceFixture(t)

		_, _, err := f.service.CreateEndpoint(ctx, validEndpoint(), "hunter2")
		require.ErrorIs(t, err, webhook.ErrInvalidSecret)
		assert.Contains(t, err.Error(), "parsing provided secret")
	})
}

func TestUpdateEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("success - tenant and created_at are write-once", func(t *testing.T) {
		f := newServiceFixture(t)

		created, _, err := f.service.CreateEndpoint(ctx, validEndpoint(), "")
		require.NoError(t, err)

		updated, err := f.service.UpdateEndpoint(ctx, webhook.Endpoint{
			ID:       created.ID,
			TenantID: "tenant-hijack",
			URL:      "https://example.com/hooks/v2",
			Events:   []string{"invoice.paid"},
			Active:   false,
		})
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", updated.TenantID)
		assert.Equal(t, created.CreatedAt, updated.CreatedAt)
		assert.Equal(t, "https://example.com/hooks/v2", updated.URL)
		assert.False(t, updated.Active)
	})

	t.Run("error - unknown endpoint", func(t *testing.T) {
		f := newServiceFixture(t)

		e := validEndpoint()
		e.ID = "missing"
		_, err := f.service.UpdateEndpoint(ctx, e)
		require.ErrorIs(t, err, webhook.ErrEndpointNotFound)
	})
}

func TestDeleteEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	created, _, err := f.service.CreateEndpoint(ctx, validEndpoint(), "")
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteEndpoint(ctx, created.ID))

	_, err = f.service.GetEndpoint(ctx, created.ID)
	require.ErrorIs(t, err, webhook.ErrEndpointNotFound)
}

func TestListDeliveries(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *serviceFixture, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			require.NoError(t, f.deliveries.CreateDelivery(ctx, webhook.Delivery{
				ID:          uuidLike(i),
				EndpointID:  "ep-1",
				EventType:   "load.created",
				Payload:     []byte(`{}`),
				Status:      webhook.Delivered,
				MaxAttempts: 5,
				CreatedAt:   time.Now(),
			}))
		}
	}

	t.Run("defaults - zero limit uses default page size", func(t *testing.T) {
		f := newServiceFixture(t)
		seed(t, f, 30)

		ds, err := f.service.ListDeliveries(ctx, "ep-1", 0, 0)
		require.NoError(t, err)
		assert.Len(t, ds, 20)
	})

	t.Run("clamp - limit capped at max page size", func(t *testing.T) {
		f := newServiceFixture(t)
		seed(t, f, 150)

		ds, err := f.service.ListDeliveries(ctx, "ep-1", 1000, 0)
		require.NoError(t, err)
		assert.Len(t, ds, 100)
	})

	t.Run("order - most recent first with offset", func(t *testing.T) {
		f := newServiceFixture(t)
		seed(t, f, 5)

		ds, err := f.service.ListDeliveries(ctx, "ep-1", 2, 1)
		require.NoError(t, err)
		require.Len(t, ds, 2)
		assert.Equal(t, uuidLike(3), ds[0].ID)
		assert.Equal(t, uuidLike(2), ds[1].ID)
	})
}

func TestRetryDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("success - failed delivery reopened and enqueued", func(t *testing.T) {
		f := newServiceFixture(t)
		code := 500
		require.NoError(t, f.deliveries.CreateDelivery(ctx, webhook.Delivery{
			ID:           "del-1",
			EndpointID:   "ep-1",
			EventType:    "load.created",
			Payload:      []byte(`{}`),
			Status:       webhook.Failed,
			Attempts:     5,
			MaxAttempts:  5,
			ResponseCode: &code,
			CreatedAt:    time.Now(),
		}))

		require.NoError(t, f.service.RetryDelivery(ctx, "del-1"))

		d, err := f.deliveries.GetDelivery(ctx, "del-1")
		require.NoError(t, err)
		assert.Equal(t, webhook.Retrying, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.Equal(t, webhook.DefaultMaxAttempts, d.MaxAttempts)
		assert.Equal(t, []string{"del-1"}, f.queue.Pending())
	})

	t.Run("error - only failed deliveries can be retried", func(t *testing.T) {
		f := newServiceFixture(t)
		require.NoError(t, f.deliveries.CreateDelivery(ctx, webhook.Delivery{
			ID:          "del-1",
			EndpointID:  "ep-1",
			EventType:   "load.created",
			Payload:     []byte(`{}`),
			Status:      webhook.Delivered,
			MaxAttempts: 5,
			CreatedAt:   time.Now(),
		}))

		err := f.service.RetryDelivery(ctx, "del-1")
		require.ErrorIs(t, err, webhook.ErrNotRetryable)
		assert.Empty(t, f.queue.Pending())
	})

	t.Run("error - unknown delivery", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.service.RetryDelivery(ctx, "missing")
		require.ErrorIs(t, err, webhook.ErrDeliveryNotFound)
	})
}

func uuidLike(i int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
}
