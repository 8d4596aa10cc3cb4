package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetgrid/webhooks/webhook"
	"github.com/fleetgrid/webhooks/webhook/signature"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

/* PostgreSQL implementation of webhook.EndpointRepository and
 * webhook.DeliveryRepository. The delivery claim and all state
 * transitions are conditional UPDATEs guarded by the current status, so
 * concurrent workers coordinate through the database without an external
 * lock service.
 */

// DB is the database surface used by the repository, compatible with
// pgxpool.Pool and pgxmock
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

type Repository struct {
	db   DB
	pool *pgxpool.Pool
}

// NewRepository connects a pool to the given database URL
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Repository{db: pool, pool: pool}, nil
}

// NewRepositoryWithDB wraps an existing DB, used by tests with pgxmock
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// Close releases the connection pool
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// --- endpoints ---

const endpointColumns = "id, tenant_id, url, events, active, description, created_at"

func (r *Repository) CreateEndpoint(ctx context.Context, e webhook.Endpoint, secret signature.Secret) error {
	q := `INSERT INTO endpoints (id, tenant_id, url, events, secret, active, description, created_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, q,
		e.ID, e.TenantID, e.URL, e.Events, secret.String(), e.Active, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting endpoint: %w", err)
	}
	return nil
}

func (r *Repository) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM endpoints WHERE id = $1`

	e, err := scanEndpoint(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.Endpoint{}, webhook.ErrEndpointNotFound
		}
		return webhook.Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}
	return e, nil
}

func (r *Repository) ListEndpoints(ctx context.Context, tenantID string) ([]webhook.Endpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM endpoints WHERE tenant_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	defer rows.Close()

	return collectEndpoints(rows)
}

func (r *Repository) ListSubscribed(ctx context.Context, tenantID, eventType string) ([]webhook.Endpoint, error) {
	q := `SELECT ` + endpointColumns + ` FROM endpoints
	      WHERE tenant_id = $1 AND active AND $2 = ANY(events)`

	rows, err := r.db.Query(ctx, q, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("listing subscribed endpoints: %w", err)
	}
	defer rows.Close()

	return collectEndpoints(rows)
}

// GetSecret reads the write-once signing secret. Only the dispatcher
// should call this; listing queries never select the secret column.
func (r *Repository) GetSecret(ctx context.Context, id string) (signature.Secret, error) {
	q := `SELECT secret FROM endpoints WHERE id = $1`

	var encoded string
	if err := r.db.QueryRow(ctx, q, id).Scan(&encoded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return signature.Secret{}, webhook.ErrEndpointNotFound
		}
		return signature.Secret{}, fmt.Errorf("getting secret: %w", err)
	}

	secret, err := signature.ParseSecret(encoded)
	if err != nil {
		return signature.Secret{}, fmt.Errorf("parsing stored secret: %w", err)
	}
	return secret, nil
}

func (r *Repository) UpdateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	// secret and created_at are write-once
	q := `UPDATE endpoints SET url = $2, events = $3, active = $4, description = $5 WHERE id = $1`

	tag, err := r.db.Exec(ctx, q, e.ID, e.URL, e.Events, e.Active, e.Description)
	if err != nil {
		return fmt.Errorf("updating endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrEndpointNotFound
	}
	return nil
}

func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	// deliveries keep their endpoint_id; history outlives the registration
	tag, err := r.db.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrEndpointNotFound
	}
	return nil
}

// --- deliveries ---

const deliveryColumns = "id, endpoint_id, event_type, payload, status, attempts, max_attempts, response_code, is_test, created_at, next_retry_at"

func (r *Repository) CreateDelivery(ctx context.Context, d webhook.Delivery) error {
	q := `INSERT INTO deliveries (id, endpoint_id, event_type, payload, status, attempts, max_attempts, response_code, is_test, created_at, next_retry_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, q,
		d.ID, d.EndpointID, d.EventType, d.Payload, d.Status.String(),
		d.Attempts, d.MaxAttempts, d.ResponseCode, d.Test, d.CreatedAt, d.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	d, err := scanDelivery(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.Delivery{}, webhook.ErrDeliveryNotFound
		}
		return webhook.Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	return d, nil
}

func (r *Repository) ListDeliveries(ctx context.Context, endpointID string, limit, offset int) ([]webhook.Delivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM deliveries
	      WHERE endpoint_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, q, endpointID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var out []webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) DueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	// selection is advisory; Claim arbitrates concurrent pickers
	q := `SELECT id FROM deliveries
	      WHERE status = 'retrying' AND next_retry_at <= $1
	      ORDER BY next_retry_at LIMIT $2`

	rows, err := r.db.Query(ctx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning due retries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning due retry id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) StatusCounts(ctx context.Context) (map[string]int64, error) {
	q := `SELECT status, COUNT(*) FROM deliveries WHERE NOT is_test GROUP BY status`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("counting delivery statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *Repository) DeliveredSince(ctx context.Context, cutoff time.Time) (int64, error) {
	q := `SELECT COUNT(*) FROM deliveries
	      WHERE NOT is_test AND status = 'delivered' AND updated_at > $1`

	var n int64
	if err := r.db.QueryRow(ctx, q, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting delivered: %w", err)
	}
	return n, nil
}

/* Claim is the atomic compare-and-swap on status: pending or retrying
 * becomes delivering, and the pre-claim row is returned so a refused
 * dispatch can restore it. A second concurrent claim matches zero rows.
 */
func (r *Repository) Claim(ctx context.Context, id string) (webhook.Delivery, error) {
	q := `UPDATE deliveries d
	      SET status = 'delivering', updated_at = now()
	      FROM deliveries old
	      WHERE d.id = $1 AND old.id = d.id AND d.status IN ('pending', 'retrying')
	      RETURNING old.id, old.endpoint_id, old.event_type, old.payload, old.status,
	                old.attempts, old.max_attempts, old.response_code, old.is_test,
	                old.created_at, old.next_retry_at`

	d, err := scanDelivery(r.db.QueryRow(ctx, q, id))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return webhook.Delivery{}, fmt.Errorf("claiming delivery: %w", err)
	}

	// zero rows: distinguish in-flight, terminal, and missing
	current, getErr := r.GetDelivery(ctx, id)
	if getErr != nil {
		return webhook.Delivery{}, getErr
	}
	if current.Status == webhook.Delivering {
		return webhook.Delivery{}, webhook.ErrAlreadyInFlight
	}
	return webhook.Delivery{}, webhook.ErrTerminalState
}

func (r *Repository) Release(ctx context.Context, id string, prior webhook.Status) error {
	q := `UPDATE deliveries SET status = $2, updated_at = now()
	      WHERE id = $1 AND status = 'delivering'`

	if _, err := r.db.Exec(ctx, q, id, prior.String()); err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	return nil
}

func (r *Repository) FinishAttempt(ctx context.Context, id string, outcome webhook.AttemptOutcome) error {
	// response_code keeps the last observed value across attempts that
	// received no response at all
	q := `UPDATE deliveries
	      SET status = $2, attempts = attempts + 1,
	          response_code = COALESCE($3, response_code),
	          next_retry_at = $4, updated_at = now()
	      WHERE id = $1 AND status = 'delivering'`

	tag, err := r.db.Exec(ctx, q, id, outcome.Status.String(), outcome.ResponseCode, outcome.NextRetryAt)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrDeliveryNotFound
	}
	return nil
}

func (r *Repository) MarkUnresolvable(ctx context.Context, id string) error {
	q := `UPDATE deliveries SET status = 'failed', next_retry_at = NULL, updated_at = now()
	      WHERE id = $1 AND status = 'delivering'`

	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("marking delivery unresolvable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhook.ErrDeliveryNotFound
	}
	return nil
}

func (r *Repository) ResetForRetry(ctx context.Context, id string, maxAttempts int, nextRetryAt time.Time) error {
	q := `UPDATE deliveries
	      SET status = 'retrying', attempts = 0, max_attempts = $2,
	          next_retry_at = $3, updated_at = now()
	      WHERE id = $1 AND status = 'failed'`

	tag, err := r.db.Exec(ctx, q, id, maxAttempts, nextRetryAt)
	if err != nil {
		return fmt.Errorf("resetting delivery for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetDelivery(ctx, id); getErr != nil {
			return getErr
		}
		return webhook.ErrNotRetryable
	}
	return nil
}

/* ReleaseStale recovers claims orphaned by a crashed worker: delivering
 * rows whose updated_at predates olderThan go back to retrying, due
 * immediately, so the next scheduler poll resubmits them.
 */
func (r *Repository) ReleaseStale(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	q := `UPDATE deliveries
	      SET status = 'retrying', next_retry_at = now(), updated_at = now()
	      WHERE id IN (
	          SELECT id FROM deliveries
	          WHERE status = 'delivering' AND updated_at < $1
	          ORDER BY updated_at LIMIT $2
	      )
	      RETURNING id`

	rows, err := r.db.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("releasing stale claims: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stale claim id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- scanning helpers ---

type row interface {
	Scan(dest ...interface{}) error
}

func scanEndpoint(r row) (webhook.Endpoint, error) {
	var e webhook.Endpoint
	err := r.Scan(&e.ID, &e.TenantID, &e.URL, &e.Events, &e.Active, &e.Description, &e.CreatedAt)
	return e, err
}

func collectEndpoints(rows pgx.Rows) ([]webhook.Endpoint, error) {
	var out []webhook.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanDelivery(r row) (webhook.Delivery, error) {
	var d webhook.Delivery
	var status string
	err := r.Scan(&d.ID, &d.EndpointID, &d.EventType, &d.Payload, &status,
		&d.Attempts, &d.MaxAttempts, &d.ResponseCode, &d.Test, &d.CreatedAt, &d.NextRetryAt)
	if err != nil {
		return webhook.Delivery{}, err
	}
	d.Status = webhook.Status(status)
	return d, nil
}
