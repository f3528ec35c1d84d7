package tracking

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dropified/suredone-adapter/internal/creds"
	"github.com/dropified/suredone-adapter/internal/metrics"
	"github.com/dropified/suredone-adapter/internal/suredone"
	"github.com/dropified/suredone-adapter/pkg/model"
)

// OrderAPI is the slice of the SureDone client the poller uses.
type OrderAPI interface {
	GetOrders(ctx context.Context, tenant suredone.TenantConfig, query url.Values) (map[string]any, error)
}

// OrderStore caches and persists polled orders.
type OrderStore interface {
	UpsertOrder(ctx context.Context, o model.Order) error
	GetCachedOrderStatus(ctx context.Context, tenantID, orderID string) (*model.OrderStatus, error)
}

// StatusPublisher announces fulfillment changes on the event bus.
type StatusPublisher interface {
	PublishOrderStatus(ctx context.Context, evt model.OrderStatusEvent) error
}

// CredentialLister enumerates connected stores.
type CredentialLister interface {
	List(ctx context.Context) ([]creds.Credential, error)
}

// Poller periodically fetches recent orders for every connected store,
// detects fulfillment changes against the cached status and emits
// order.status_changed events.
type Poller struct {
	api      OrderAPI
	store    OrderStore
	pub      StatusPublisher
	creds    CredentialLister
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
}

func NewPoller(api OrderAPI, store OrderStore, pub StatusPublisher, credentials CredentialLister, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		api:      api,
		store:    store,
		pub:      pub,
		creds:    credentials,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("tracking.poller.started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) pollAll(ctx context.Context) {
	credentials, err := p.creds.List(ctx)
	if err != nil {
		p.logger.Error("tracking.poller.list_credentials_failed", zap.Error(err))
		metrics.IncError("tracking_poller", "list_credentials")
		return
	}

	for _, cred := range credentials {
		tenant := suredone.TenantConfig{Username: cred.Username, Token: cred.Token}
		if err := p.pollTenant(ctx, tenant); err != nil {
			p.logger.Error("tracking.poller.tenant_failed",
				zap.String("tenant", cred.Username),
				zap.Error(err))
			metrics.IncError("tracking_poller", "poll")
		}
	}
}

func (p *Poller) pollTenant(ctx context.Context, tenant suredone.TenantConfig) error {
	query := url.Values{}
	query.Set("sort", "-updated")

	payload, err := p.api.GetOrders(ctx, tenant, query)
	if err != nil {
		return err
	}

	for _, order := range parseOrders(tenant.Username, payload) {
		prev, err := p.store.GetCachedOrderStatus(ctx, order.TenantID, order.OrderID)
		if err != nil {
			p.logger.Warn("tracking.poller.cache_read_failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
		}

		changed := prev == nil ||
			prev.Status != order.Status ||
			prev.TrackingNumber != order.TrackingNumber

		if err := p.store.UpsertOrder(ctx, order); err != nil {
			p.logger.Error("tracking.poller.upsert_failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
			continue
		}

		if !changed || p.pub == nil {
			continue
		}
		evt := model.OrderStatusEvent{
			TenantID:       order.TenantID,
			OrderID:        order.OrderID,
			Status:         order.Status,
			TrackingNumber: order.TrackingNumber,
			Timestamp:      time.Now().UTC(),
		}
		if err := p.pub.PublishOrderStatus(ctx, evt); err != nil {
			p.logger.Error("tracking.poller.publish_failed",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
		}
	}
	return nil
}

// parseOrders extracts orders from the raw API payload. The orders endpoint
// returns {"orders": [...]} where each entry carries oid, status, total,
// an optional shipments list and an items list.
func parseOrders(tenantID string, payload map[string]any) []model.Order {
	raw, ok := payload["orders"].([]any)
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	var orders []model.Order
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id := stringField(m, "oid")
		if id == "" {
			id = stringField(m, "ordernumber")
		}
		if id == "" {
			continue
		}

		o := model.Order{
			TenantID:       tenantID,
			OrderID:        id,
			Status:         stringField(m, "status"),
			TrackingNumber: firstTracking(m),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if total, err := decimal.NewFromString(stringField(m, "total")); err == nil {
			o.Total = total
		}
		if items, ok := m["items"].([]any); ok {
			for _, it := range items {
				im, ok := it.(map[string]any)
				if !ok {
					continue
				}
				item := model.OrderItem{
					ProductID: stringField(im, "guid"),
					Title:     stringField(im, "title"),
					Quantity:  intField(im, "quantity"),
				}
				if price, err := decimal.NewFromString(stringField(im, "price")); err == nil {
					item.Price = price
				}
				o.Items = append(o.Items, item)
			}
		}
		orders = append(orders, o)
	}
	return orders
}

func firstTracking(m map[string]any) string {
	shipments, ok := m["shipments"].([]any)
	if !ok || len(shipments) == 0 {
		return ""
	}
	first, ok := shipments[0].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(first, "tracking")
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
