package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/fleetgrid/webhooks/webhook/signature"
)

/* In-memory implementations of the repositories and queue.
 * Used by the package tests and the HTTP handler tests; mutex-guarded so
 * the claim semantics match the durable implementations.
 */

// MemoryEndpoints is an in-memory EndpointRepository
type MemoryEndpoints struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
	secrets   map[string]signature.Secret
}

// NewMemoryEndpoints creates an empty in-memory endpoint repository
func NewMemoryEndpoints() *MemoryEndpoints {
	return &MemoryEndpoints{
		endpoints: make(map[string]Endpoint),
		secrets:   make(map[string]signature.Secret),
	}
}

func (m *MemoryEndpoints) CreateEndpoint(ctx context.Context, e Endpoint, secret signature.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[e.ID] = e
	m.secrets[e.ID] = secret
	return nil
}

func (m *MemoryEndpoints) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.endpoints[id]
	if !ok {
		return Endpoint{}, ErrEndpointNotFound
	}
	return e, nil
}

func (m *MemoryEndpoints) ListEndpoints(ctx context.Context, tenantID string) ([]Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Endpoint
	for _, e := range m.endpoints {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryEndpoints) ListSubscribed(ctx context.Context, tenantID, eventType string) ([]Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Endpoint
	for _, e := range m.endpoints {
		if e.TenantID == tenantID && e.Active && e.Subscribed(eventType) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryEndpoints) GetSecret(ctx context.Context, id string) (signature.Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.endpoints[id]; !ok {
		return signature.Secret{}, ErrEndpointNotFound
	}
	return m.secrets[id], nil
}

func (m *MemoryEndpoints) UpdateEndpoint(ctx context.Context, e Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[e.ID]; !ok {
		return ErrEndpointNotFound
	}
	m.endpoints[e.ID] = e
	return nil
}

func (m *MemoryEndpoints) DeleteEndpoint(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[id]; !ok {
		return ErrEndpointNotFound
	}
	delete(m.endpoints, id)
	delete(m.secrets, id)
	return nil
}

// MemoryDeliveries is an in-memory DeliveryRepository
type MemoryDeliveries struct {
	mu         sync.Mutex
	deliveries map[string]Delivery
	order      []string // insertion order, for most-recent-first listing
	// updated mirrors the durable store's updated_at column: the last
	// state transition time, driving throughput windows and the stale
	// claim sweep
	updated map[string]time.Time
}

// NewMemoryDeliveries creates an empty in-memory delivery store
func NewMemoryDeliveries() *MemoryDeliveries {
	return &MemoryDeliveries{
		deliveries: make(map[string]Delivery),
		updated:    make(map[string]time.Time),
	}
}

func (m *MemoryDeliveries) CreateDelivery(ctx context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.ID] = d
	m.order = append(m.order, d.ID)
	m.updated[d.ID] = time.Now()
	return nil
}

func (m *MemoryDeliveries) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, ErrDeliveryNotFound
	}
	return d, nil
}

func (m *MemoryDeliveries) ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Delivery
	for i := len(m.order) - 1; i >= 0; i-- {
		d := m.deliveries[m.order[i]]
		if d.EndpointID == endpointID {
			matched = append(matched, d)
		}
	}

	if offset >= len(matched) {
		return []Delivery{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryDeliveries) DueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []string
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Status == Retrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			due = append(due, id)
			if limit > 0 && len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

func (m *MemoryDeliveries) StatusCounts(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int64)
	for _, d := range m.deliveries {
		if d.Test {
			continue
		}
		counts[d.Status.String()]++
	}
	return counts, nil
}

func (m *MemoryDeliveries) DeliveredSince(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, d := range m.deliveries {
		// counted by completion time, not creation time
		if !d.Test && d.Status == Delivered && m.updated[id].After(cutoff) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryDeliveries) Claim(ctx context.Context, id string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, ErrDeliveryNotFound
	}
	if d.Status == Delivering {
		return Delivery{}, ErrAlreadyInFlight
	}
	if d.Status.IsTerminal() {
		return Delivery{}, ErrTerminalState
	}

	// returned snapshot keeps the pre-claim status for Release
	snapshot := d
	d.Status = Delivering
	m.deliveries[id] = d
	m.updated[id] = time.Now()
	return snapshot, nil
}

func (m *MemoryDeliveries) Release(ctx context.Context, id string, prior Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	if d.Status != Delivering {
		return nil
	}
	d.Status = prior
	m.deliveries[id] = d
	m.updated[id] = time.Now()
	return nil
}

func (m *MemoryDeliveries) FinishAttempt(ctx context.Context, id string, outcome AttemptOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	// an attempt can only be recorded against a held claim
	if d.Status != Delivering {
		return ErrDeliveryNotFound
	}

	d.Attempts++
	d.Status = outcome.Status
	if outcome.ResponseCode != nil {
		code := *outcome.ResponseCode
		d.ResponseCode = &code
	}
	d.NextRetryAt = outcome.NextRetryAt
	m.deliveries[id] = d
	m.updated[id] = time.Now()
	return nil
}

func (m *MemoryDeliveries) MarkUnresolvable(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	d.Status = Failed
	d.NextRetryAt = nil
	m.deliveries[id] = d
	m.updated[id] = time.Now()
	return nil
}

func (m *MemoryDeliveries) ResetForRetry(ctx context.Context, id string, maxAttempts int, nextRetryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	if d.Status != Failed {
		return ErrNotRetryable
	}

	d.Status = Retrying
	d.Attempts = 0
	d.MaxAttempts = maxAttempts
	d.NextRetryAt = &nextRetryAt
	m.deliveries[id] = d
	m.updated[id] = time.Now()
	return nil
}

func (m *MemoryDeliveries) ReleaseStale(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Status != Delivering || !m.updated[id].Before(olderThan) {
			continue
		}

		now := time.Now()
		d.Status = Retrying
		d.NextRetryAt = &now
		m.deliveries[id] = d
		m.updated[id] = now

		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// MemoryQueue is an in-memory Queue
type MemoryQueue struct {
	mu  sync.Mutex
	ids []string
}

// NewMemoryQueue creates an empty in-memory dispatch queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, deliveryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, deliveryID)
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, consumer string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return []string{}, nil
	}
	ids := q.ids
	q.ids = nil
	return ids, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, consumer, deliveryID string) error {
	return nil
}

// Pending returns the ids currently queued, oldest first
func (q *MemoryQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}
