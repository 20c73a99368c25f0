package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"wasteroute/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

const routeColumns = `id, algorithm, COALESCE(crew_id,''), status, start_lat, start_lng, bin_count, total_distance_km,
    estimated_time_minutes, efficiency_score, truncated, waypoints, created_at, started_at, completed_at,
    actual_time_minutes, COALESCE(notes,'')`

type rowScanner interface{ Scan(dest ...any) error }

func scanRoute(row rowScanner) (model.Route, error) {
	var r model.Route
	var wps []byte
	var created time.Time
	var started, completed sql.NullTime
	var actual sql.NullFloat64
	var status string
	if err := row.Scan(&r.ID, &r.Algorithm, &r.CrewID, &status, &r.Start.Lat, &r.Start.Lng, &r.BinCount, &r.TotalDistanceKm,
		&r.EstimatedTimeMinutes, &r.EfficiencyScore, &r.Truncated, &wps, &created, &started, &completed, &actual, &r.Notes); err != nil {
		return model.Route{}, err
	}
	r.Status = model.RouteStatus(status)
	if err := json.Unmarshal(wps, &r.Waypoints); err != nil {
		return model.Route{}, fmt.Errorf("decode waypoints of %s: %w", r.ID, err)
	}
	created = created.UTC()
	r.CreatedAt = &created
	if started.Valid {
		t := started.Time.UTC()
		r.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		r.CompletedAt = &t
	}
	if actual.Valid {
		v := actual.Float64
		r.ActualTimeMinutes = &v
	}
	return r, nil
}

// keysetAfter resolves cursor to the (created_at, id) position it names in table.
// Lists page on that pair so memory and Postgres agree on order.
func (p *Postgres) keysetAfter(ctx context.Context, table, cursor string) (time.Time, error) {
	var at time.Time
	err := p.db.QueryRowContext(ctx, `SELECT created_at FROM `+table+` WHERE id::text=$1`, cursor).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrInvalidCursor
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve cursor: %w", err)
	}
	return at, nil
}

func (p *Postgres) SaveRoute(ctx context.Context, r model.Route) (model.Route, error) {
	if r.ID == "" {
		r.ID = "route_" + uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	if r.CreatedAt == nil {
		now := time.Now().UTC()
		r.CreatedAt = &now
	}
	wps, err := json.Marshal(r.Waypoints)
	if err != nil {
		return model.Route{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO routes (id, algorithm, crew_id, status, start_lat, start_lng, bin_count, total_distance_km,
        estimated_time_minutes, efficiency_score, truncated, waypoints, created_at, started_at, completed_at, actual_time_minutes, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.Algorithm, nullIfEmpty(r.CrewID), string(r.Status), r.Start.Lat, r.Start.Lng, r.BinCount, r.TotalDistanceKm,
		r.EstimatedTimeMinutes, r.EfficiencyScore, r.Truncated, wps, *r.CreatedAt, nullTime(r.StartedAt), nullTime(r.CompletedAt),
		nullFloat(r.ActualTimeMinutes), nullIfEmpty(r.Notes))
	if err != nil {
		return model.Route{}, fmt.Errorf("insert route: %w", err)
	}
	return r, nil
}

func (p *Postgres) GetRoute(ctx context.Context, routeID string) (model.Route, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE id=$1`, routeID)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRoutes(ctx context.Context, f model.RouteFilter, cursor string, limit int) ([]model.Route, string, error) {
	limit = clampLimit(limit)
	where := []string{"TRUE"}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	if f.CrewID != "" {
		add("crew_id=$%d", f.CrewID)
	}
	if cursor != "" {
		at, err := p.keysetAfter(ctx, "routes", cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, at, cursor)
		where = append(where, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT %s FROM routes WHERE %s ORDER BY created_at, id LIMIT $%d`, routeColumns, strings.Join(where, " AND "), len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) UpdateRouteStatus(ctx context.Context, routeID string, upd model.StatusUpdate, now time.Time) (model.Route, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Route{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanRoute(tx.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE id=$1 FOR UPDATE`, routeID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, false, ErrNotFound
	}
	if err != nil {
		return model.Route{}, false, err
	}
	prev := r.Status
	if err := applyStatus(&r, upd, now); err != nil {
		return model.Route{}, false, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE routes SET status=$2, started_at=$3, completed_at=$4, actual_time_minutes=$5, notes=$6 WHERE id=$1`,
		routeID, string(r.Status), nullTime(r.StartedAt), nullTime(r.CompletedAt), nullFloat(r.ActualTimeMinutes), nullIfEmpty(r.Notes))
	if err != nil {
		return model.Route{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Route{}, false, err
	}
	return r, r.Status != prev, nil
}

func (p *Postgres) DeleteRoute(ctx context.Context, routeID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM routes WHERE id=$1`, routeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListCompletedRoutes(ctx context.Context) ([]model.Route, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE status=$1 ORDER BY completed_at`, string(model.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	filter, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE events @> $1::jsonb`, string(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		at, cerr := p.keysetAfter(ctx, "subscriptions", cursor)
		if cerr != nil {
			return nil, "", cerr
		}
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions
            WHERE (created_at, id::text) > ($1, $2) ORDER BY created_at, id LIMIT $3`, at, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions ORDER BY created_at, id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries

// EnqueueWebhook returns the id of the existing delivery when the same
// (event type, url, dedup key) was already queued.
func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO UPDATE SET dedup_key=EXCLUDED.dedup_key
        RETURNING id::text`, uuid.New().String(), nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, computeDedupKey(payload)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, dedup_key, status, attempts, next_attempt_at
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.DedupKey, &d.Status, &d.Attempts, &d.NextAttemptAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	limit = clampLimit(limit)
	where := []string{"TRUE"}
	args := []any{}
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if cursor != "" {
		at, err := p.keysetAfter(ctx, "webhook_deliveries", cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, at, cursor)
		where = append(where, fmt.Sprintf("(created_at, id::text) > ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, status, attempts, next_attempt_at,
        COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at
        FROM webhook_deliveries WHERE %s ORDER BY created_at, id LIMIT $%d`, strings.Join(where, " AND "), len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var delivered sql.NullTime
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &d.NextAttemptAt,
			&d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil {
			return nil, "", err
		}
		if delivered.Valid {
			t := delivered.Time
			d.DeliveredAt = &t
		}
		out = append(out, d)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

// computeDedupKey uses the payload's "id" when present, else a short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// splitStatements splits a schema file on semicolons that end a line.
func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";\n") {
		if s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
