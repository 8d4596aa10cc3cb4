package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetgrid/webhooks/webhook"
	"github.com/fleetgrid/webhooks/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires an in-memory store with one endpoint and one pending delivery
type fixture struct {
	endpoints  *webhook.MemoryEndpoints
	deliveries *webhook.MemoryDeliveries
	secret     signature.Secret
	endpoint   webhook.Endpoint
	delivery   webhook.Delivery
}

func newFixture(t *testing.T, url string, maxAttempts int) *fixture {
	t.Helper()

	secret, err := signature.GenerateSecret()
	require.NoError(t, err)

	ep := webhook.Endpoint{
		ID:        "ep-1",
		TenantID:  "tenant-1",
		URL:       url,
		Events:    []string{"load.created"},
		Active:    true,
		CreatedAt: time.Now(),
	}

	endpoints := webhook.NewMemoryEndpoints()
	require.NoError(t, endpoints.CreateEndpoint(context.Background(), ep, secret))

	del := webhook.Delivery{
		ID:          "del-1",
		EndpointID:  ep.ID,
		EventType:   "load.created",
		Payload:     []byte(`{"type":"load.created","timestamp":"2025-06-15T10:30:00Z","data":{"load_id":"L-42"}}`),
		Status:      webhook.Pending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}

	deliveries := webhook.NewMemoryDeliveries()
	require.NoError(t, deliveries.CreateDelivery(context.Background(), del))

	return &fixture{
		endpoints:  endpoints,
		deliveries: deliveries,
		secret:     secret,
		endpoint:   ep,
		delivery:   del,
	}
}

func (f *fixture) dispatcher(timeout time.Duration) *webhook.Dispatcher {
	// Jitter zeroed so retry schedules are predictable
	backoff := webhook.Backoff{Base: 30 * time.Second, Max: time.Hour}
	return webhook.NewDispatcher(f.endpoints, f.deliveries, timeout, backoff)
}

func (f *fixture) get(t *testing.T) webhook.Delivery {
	t.Helper()
	d, err := f.deliveries.GetDelivery(context.Background(), f.delivery.ID)
	require.NoError(t, err)
	return d
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("success - 2xx marks delivered", func(t *testing.T) {
		var gotHeaders http.Header
		var gotBody []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			buf := make([]byte, 4096)
			n, _ := r.Body.Read(buf)
			gotBody = buf[:n]
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		err := f.dispatcher(0).Dispatch(ctx, f.delivery.ID)
		require.NoError(t, err)

		d := f.get(t)
		assert.Equal(t, webhook.Delivered, d.Status)
		assert.Equal(t, 1, d.Attempts)
		require.NotNil(t, d.ResponseCode)
		assert.Equal(t, http.StatusOK, *d.ResponseCode)
		assert.Nil(t, d.NextRetryAt)

		// outbound contract headers
		assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
		assert.Equal(t, f.delivery.ID, gotHeaders.Get(webhook.HeaderID))
		assert.Equal(t, "load.created", gotHeaders.Get(webhook.HeaderEventType))
		assert.NotEmpty(t, gotHeaders.Get(webhook.HeaderTimestamp))
		assert.Equal(t, f.delivery.Payload, gotBody)

		// the signature verifies against exactly what was received
		ts, err := time.Parse(time.RFC3339, gotHeaders.Get(webhook.HeaderTimestamp))
		require.NoError(t, err)
		sig, err := signature.ParseSignature(gotHeaders.Get(webhook.HeaderSignature))
		require.NoError(t, err)
		ok, err := signature.Verify(f.secret, f.delivery.ID, ts, gotBody, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("failure - 5xx schedules retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		err := f.dispatcher(0).Dispatch(ctx, f.delivery.ID)
		require.NoError(t, err)

		d := f.get(t)
		assert.Equal(t, webhook.Retrying, d.Status)
		assert.Equal(t, 1, d.Attempts)
		require.NotNil(t, d.ResponseCode)
		assert.Equal(t, http.StatusInternalServerError, *d.ResponseCode)
		require.NotNil(t, d.NextRetryAt)
		assert.True(t, d.NextRetryAt.After(time.Now()))
	})

	t.Run("failure - 4xx is retried like any failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		require.NoError(t, f.dispatcher(0).Dispatch(ctx, f.delivery.ID))

		d := f.get(t)
		assert.Equal(t, webhook.Retrying, d.Status)
		require.NotNil(t, d.ResponseCode)
		assert.Equal(t, http.StatusNotFound, *d.ResponseCode)
	})

	t.Run("failure - timeout counts as attempt without response code", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		require.NoError(t, f.dispatcher(50*time.Millisecond).Dispatch(ctx, f.delivery.ID))

		d := f.get(t)
		assert.Equal(t, webhook.Retrying, d.Status)
		assert.Equal(t, 1, d.Attempts)
		assert.Nil(t, d.ResponseCode)
	})

	t.Run("exhaustion - final attempt marks failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 2)
		dispatcher := f.dispatcher(0)

		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))
		assert.Equal(t, webhook.Retrying, f.get(t).Status)

		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))

		d := f.get(t)
		assert.Equal(t, webhook.Failed, d.Status)
		assert.Equal(t, 2, d.Attempts)
		assert.Nil(t, d.NextRetryAt)
	})

	t.Run("refused - inactive endpoint leaves delivery unchanged", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		f.endpoint.Active = false
		require.NoError(t, f.endpoints.UpdateEndpoint(ctx, f.endpoint))

		err := f.dispatcher(0).Dispatch(ctx, f.delivery.ID)
		require.ErrorIs(t, err, webhook.ErrEndpointInactive)

		d := f.get(t)
		assert.Equal(t, webhook.Pending, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("refused - deleted endpoint marks failed without attempt", func(t *testing.T) {
		f := newFixture(t, "http://example.com/hook", 5)
		require.NoError(t, f.endpoints.DeleteEndpoint(ctx, f.endpoint.ID))

		err := f.dispatcher(0).Dispatch(ctx, f.delivery.ID)
		require.ErrorIs(t, err, webhook.ErrEndpointNotFound)

		d := f.get(t)
		assert.Equal(t, webhook.Failed, d.Status)
		assert.Equal(t, 0, d.Attempts)
	})

	t.Run("refused - terminal delivery is a no-op", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		dispatcher := f.dispatcher(0)
		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))

		err := dispatcher.Dispatch(ctx, f.delivery.ID)
		require.ErrorIs(t, err, webhook.ErrTerminalState)
		assert.Equal(t, 1, f.get(t).Attempts)
	})

	t.Run("concurrency - one HTTP call under racing dispatches", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(50 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		dispatcher := f.dispatcher(0)

		var wg sync.WaitGroup
		results := make([]error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = dispatcher.Dispatch(ctx, f.delivery.ID)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		wins := 0
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			default:
				assert.True(t,
					errors.Is(err, webhook.ErrAlreadyInFlight) || errors.Is(err, webhook.ErrTerminalState),
					"unexpected dispatch error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, webhook.Delivered, f.get(t).Status)
	})
}

func TestDispatchScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("timeout then 500 then 200 ends delivered with three attempts", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				time.Sleep(300 * time.Millisecond)
			case 2:
				w.WriteHeader(http.StatusInternalServerError)
			default:
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 5)
		dispatcher := f.dispatcher(50 * time.Millisecond)

		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))
		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))
		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))

		d := f.get(t)
		assert.Equal(t, webhook.Delivered, d.Status)
		assert.Equal(t, 3, d.Attempts)
		require.NotNil(t, d.ResponseCode)
		assert.Equal(t, http.StatusOK, *d.ResponseCode)
	})

	t.Run("exhausted then manual retry delivers on fresh budget", func(t *testing.T) {
		var healthy atomic.Bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthy.Load() {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, 3)
		dispatcher := f.dispatcher(0)

		for i := 0; i < 3; i++ {
			require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))
		}
		d := f.get(t)
		require.Equal(t, webhook.Failed, d.Status)
		require.Equal(t, 3, d.Attempts)

		// operator fixes the receiver and retries the dead delivery
		healthy.Store(true)
		require.NoError(t, f.deliveries.ResetForRetry(ctx, f.delivery.ID, 3, time.Now()))

		require.NoError(t, dispatcher.Dispatch(ctx, f.delivery.ID))

		d = f.get(t)
		assert.Equal(t, webhook.Delivered, d.Status)
		assert.Equal(t, 1, d.Attempts)
		assert.Equal(t, f.delivery.Payload, d.Payload)
	})
}
