package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	TenantID      string          `json:"tenant_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// OrderStatusEvent is emitted when a tracked SureDone order changes
// fulfillment status.
type OrderStatusEvent struct {
	TenantID       string    `json:"tenant_id"`
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ExportCompletedEvent is emitted when an order-export report has been generated.
type ExportCompletedEvent struct {
	TenantID   string    `json:"tenant_id"`
	ConfigID   string    `json:"config_id"`
	ReportID   string    `json:"report_id"`
	OrderCount int       `json:"order_count"`
	Timestamp  time.Time `json:"timestamp"`
}
