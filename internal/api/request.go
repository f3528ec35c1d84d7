package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dropified/suredone-adapter/internal/suredone"
)

// ConnectStoreRequest carries the credentials of a SureDone account to
// connect. Either a password (token issued via the partner auth endpoint) or
// a pre-issued token must be supplied.
type ConnectStoreRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

func (r ConnectStoreRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.Password == "" && r.Token == "" {
		return errors.New("either password or token is required")
	}
	return nil
}

// BulkRequest carries the rows of a bulk product operation.
type BulkRequest struct {
	Rows            [][]string `json:"rows"`
	SkipAllChannels bool       `json:"skip_all_channels"`
	Force           bool       `json:"force"`
}

func (r BulkRequest) Validate() error {
	if len(r.Rows) < 2 {
		return errors.New("rows must contain a header row and at least one data row")
	}
	return nil
}

// DeleteProductsRequest carries the GUIDs of products to remove.
type DeleteProductsRequest struct {
	GUIDs           []string `json:"guids"`
	SkipAllChannels bool     `json:"skip_all_channels"`
}

func (r DeleteProductsRequest) Validate() error {
	if len(r.GUIDs) == 0 {
		return errors.New("guids must not be empty")
	}
	return nil
}

// ChannelAuthRequest identifies a channel authorization flow.
type ChannelAuthRequest struct {
	Channel  string `json:"channel"`
	Instance int    `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	State    string `json:"state,omitempty"`
}

func (r ChannelAuthRequest) Validate() error {
	if !suredone.Channel(r.Channel).Valid() {
		return fmt.Errorf("unsupported channel %q", r.Channel)
	}
	return nil
}

// ExportConfigRequest describes a saved order-export definition.
type ExportConfigRequest struct {
	TenantID   string   `json:"tenant_id"`
	Statuses   []string `json:"statuses,omitempty"`
	Since      string   `json:"since,omitempty"` // RFC 3339
	Until      string   `json:"until,omitempty"` // RFC 3339
	MinPrice   string   `json:"min_price,omitempty"`
	MaxPrice   string   `json:"max_price,omitempty"`
	TitleTerms []string `json:"title_terms,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Daily      bool     `json:"daily"`
}

func (r ExportConfigRequest) Validate() error {
	if r.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	for name, raw := range map[string]string{"since": r.Since, "until": r.Until} {
		if raw == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("%s must be RFC 3339: %w", name, err)
		}
	}
	for name, raw := range map[string]string{"min_price": r.MinPrice, "max_price": r.MaxPrice} {
		if raw == "" {
			continue
		}
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("%s must be a decimal: %w", name, err)
		}
	}
	return nil
}
