package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/pkg/model"
)

// orderStatusTTL bounds how long a cached fulfillment status is trusted
// before the poller re-reads it from Postgres.
const orderStatusTTL = 24 * time.Hour

// Store defines the contract for caching and persisting order and export data.
type Store interface {
	UpsertOrder(ctx context.Context, o model.Order) error
	ListTenantOrders(ctx context.Context, tenantID string, limit int) ([]model.Order, error)
	GetCachedOrderStatus(ctx context.Context, tenantID, orderID string) (*model.OrderStatus, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	SaveExportConfig(ctx context.Context, cfg *model.ExportConfig) error
	GetExportConfig(ctx context.Context, id string) (*model.ExportConfig, error)
	ListDueExportConfigs(ctx context.Context, asOf time.Time) ([]model.ExportConfig, error)
	MarkExportRun(ctx context.Context, configID string, at time.Time) error
	SaveReport(ctx context.Context, r *model.ExportReport) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore is a Redis-first, Postgres-backed store. Postgres holds the
// durable order/export records; Redis holds the hot fulfillment-status cache
// the tracking poller compares against.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates the store. pgURL may be empty, in which case only the
// Redis-backed operations are available.
func NewHybrid(redisAddr, redisPass string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPass,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// UpsertOrder persists the order and refreshes the status cache.
func (s *HybridStore) UpsertOrder(ctx context.Context, o model.Order) error {
	if s.PG != nil {
		_, err := s.PG.Exec(ctx, `
			INSERT INTO suredone.orders (tenant_id, order_id, status, tracking_number, total, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), NOW())
			ON CONFLICT (tenant_id, order_id)
			DO UPDATE SET status = EXCLUDED.status,
			              tracking_number = EXCLUDED.tracking_number,
			              total = EXCLUDED.total,
			              updated_at = NOW()
		`, o.TenantID, o.OrderID, o.Status, o.TrackingNumber, o.Total.String(), nullableTime(o.CreatedAt))
		if err != nil {
			s.logger.Error("store.pg.upsert_order_failed",
				zap.String("tenant", o.TenantID),
				zap.String("order_id", o.OrderID),
				zap.Error(err))
			return err
		}

		for _, item := range o.Items {
			_, err := s.PG.Exec(ctx, `
				INSERT INTO suredone.order_items (tenant_id, order_id, product_id, title, price, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (tenant_id, order_id, product_id)
				DO UPDATE SET title = EXCLUDED.title,
				              price = EXCLUDED.price,
				              quantity = EXCLUDED.quantity
			`, o.TenantID, o.OrderID, item.ProductID, item.Title, item.Price.String(), item.Quantity)
			if err != nil {
				return err
			}
		}
	}

	return s.SetJSON(ctx, orderStatusKey(o.TenantID, o.OrderID), model.OrderStatus{
		Status:         o.Status,
		TrackingNumber: o.TrackingNumber,
	}, orderStatusTTL)
}

// GetCachedOrderStatus returns the cached fulfillment status, or nil on a miss.
func (s *HybridStore) GetCachedOrderStatus(ctx context.Context, tenantID, orderID string) (*model.OrderStatus, error) {
	var st model.OrderStatus
	err := s.GetJSON(ctx, orderStatusKey(tenantID, orderID), &st)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *HybridStore) ListTenantOrders(ctx context.Context, tenantID string, limit int) ([]model.Order, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.PG.Query(ctx, `
		SELECT tenant_id, order_id, status, tracking_number, total::text, created_at, updated_at
		FROM suredone.orders
		WHERE tenant_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Order
	for rows.Next() {
		var o model.Order
		var total string
		if err := rows.Scan(&o.TenantID, &o.OrderID, &o.Status, &o.TrackingNumber,
			&total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Total, _ = decimal.NewFromString(total)
		results = append(results, o)
	}
	return results, rows.Err()
}

// SetJSON stores a JSON-encoded value in Redis with TTL.
func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

// GetJSON loads a JSON-encoded value from Redis. A missing key surfaces as
// redis.Nil.
func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) SaveExportConfig(ctx context.Context, cfg *model.ExportConfig) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO suredone.export_configs (
			id, tenant_id, statuses, since, until, min_price, max_price,
			title_terms, product_ids, daily, next_run_at, last_run_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id)
		DO UPDATE SET statuses = EXCLUDED.statuses,
		              since = EXCLUDED.since,
		              until = EXCLUDED.until,
		              min_price = EXCLUDED.min_price,
		              max_price = EXCLUDED.max_price,
		              title_terms = EXCLUDED.title_terms,
		              product_ids = EXCLUDED.product_ids,
		              daily = EXCLUDED.daily,
		              next_run_at = EXCLUDED.next_run_at
	`, cfg.ID, cfg.TenantID, cfg.Statuses, cfg.Since, cfg.Until,
		decimalOrNil(cfg.MinPrice), decimalOrNil(cfg.MaxPrice),
		cfg.TitleTerms, cfg.ProductIDs, cfg.Daily, cfg.NextRunAt, cfg.LastRunAt)
	return err
}

func (s *HybridStore) GetExportConfig(ctx context.Context, id string) (*model.ExportConfig, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	row := s.PG.QueryRow(ctx, `
		SELECT id, tenant_id, statuses, since, until, min_price::text, max_price::text,
		       title_terms, product_ids, daily, next_run_at, last_run_at, created_at
		FROM suredone.export_configs
		WHERE id = $1
	`, id)
	cfg, err := scanExportConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *HybridStore) ListDueExportConfigs(ctx context.Context, asOf time.Time) ([]model.ExportConfig, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT id, tenant_id, statuses, since, until, min_price::text, max_price::text,
		       title_terms, product_ids, daily, next_run_at, last_run_at, created_at
		FROM suredone.export_configs
		WHERE daily AND next_run_at <= $1
		ORDER BY next_run_at
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []model.ExportConfig
	for rows.Next() {
		cfg, err := scanExportConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// MarkExportRun advances the schedule after a job has been enqueued.
func (s *HybridStore) MarkExportRun(ctx context.Context, configID string, at time.Time) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		UPDATE suredone.export_configs
		SET last_run_at = $2, next_run_at = $2 + INTERVAL '24 hours'
		WHERE id = $1
	`, configID, at)
	return err
}

func (s *HybridStore) SaveReport(ctx context.Context, r *model.ExportReport) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO suredone.export_reports (id, config_id, tenant_id, order_count, csv_data, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.ConfigID, r.TenantID, r.OrderCount, r.CSV, r.GeneratedAt)
	if err != nil {
		s.logger.Error("store.pg.save_report_failed",
			zap.String("report_id", r.ID),
			zap.Error(err))
	}
	return err
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	return s.redis.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExportConfig(row rowScanner) (*model.ExportConfig, error) {
	var cfg model.ExportConfig
	var minPrice, maxPrice *string
	if err := row.Scan(&cfg.ID, &cfg.TenantID, &cfg.Statuses, &cfg.Since, &cfg.Until,
		&minPrice, &maxPrice, &cfg.TitleTerms, &cfg.ProductIDs,
		&cfg.Daily, &cfg.NextRunAt, &cfg.LastRunAt, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	if minPrice != nil {
		if d, err := decimal.NewFromString(*minPrice); err == nil {
			cfg.MinPrice = &d
		}
	}
	if maxPrice != nil {
		if d, err := decimal.NewFromString(*maxPrice); err == nil {
			cfg.MaxPrice = &d
		}
	}
	return &cfg, nil
}

func orderStatusKey(tenantID, orderID string) string {
	return fmt.Sprintf("order_status:%s:%s", tenantID, orderID)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
