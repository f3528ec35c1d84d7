package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a locally cached copy of a SureDone order, kept so that exports
// and tracking can query without round-tripping to the external API.
type Order struct {
	TenantID       string          `json:"tenant_id"`
	OrderID        string          `json:"order_id"`
	Status         string          `json:"status"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Items          []OrderItem     `json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// OrderStatus is the cached fulfillment state of one order.
type OrderStatus struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// ExportConfig is a saved order-export definition. Product-identity filters
// (title terms, known product IDs) are OR'd together; price bounds and the
// status/date filters are AND'd with them.
type ExportConfig struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenant_id"`
	Statuses   []string         `json:"statuses,omitempty"`
	Since      *time.Time       `json:"since,omitempty"`
	Until      *time.Time       `json:"until,omitempty"`
	MinPrice   *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice   *decimal.Decimal `json:"max_price,omitempty"`
	TitleTerms []string         `json:"title_terms,omitempty"`
	ProductIDs []string         `json:"product_ids,omitempty"`
	Daily      bool             `json:"daily"`
	NextRunAt  time.Time        `json:"next_run_at"`
	LastRunAt  *time.Time       `json:"last_run_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ExportJob is the queue message handed to the report-generation worker.
type ExportJob struct {
	ConfigID    string    `json:"config_id"`
	TenantID    string    `json:"tenant_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// ExportReport is a generated order-export report.
type ExportReport struct {
	ID          string    `json:"id"`
	ConfigID    string    `json:"config_id"`
	TenantID    string    `json:"tenant_id"`
	OrderCount  int       `json:"order_count"`
	CSV         []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}
