package exports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dropified/suredone-adapter/pkg/model"
)

func TestBuildOrderQuery_TenantOnly(t *testing.T) {
	query, args := BuildOrderQuery(model.ExportConfig{TenantID: "acme"})

	assert.Contains(t, query, "o.tenant_id = $1")
	assert.Contains(t, query, "SELECT o.order_id")
	assert.NotContains(t, query, "ILIKE")
	assert.Equal(t, []any{"acme"}, args)
}

// An order with no line items must still match when the config carries no
// item filter, so the query may only touch order_items inside the EXISTS
// guard that item filters introduce.
func TestBuildOrderQuery_NoItemFilterSkipsItemTable(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	query, _ := BuildOrderQuery(model.ExportConfig{
		TenantID: "acme",
		Statuses: []string{"shipped"},
		Since:    &since,
	})

	assert.NotContains(t, query, "order_items")
	assert.NotContains(t, query, "JOIN")
}

func TestBuildOrderQuery_StatusAndDates(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	query, args := BuildOrderQuery(model.ExportConfig{
		TenantID: "acme",
		Statuses: []string{"shipped", "delivered"},
		Since:    &since,
		Until:    &until,
	})

	assert.Contains(t, query, "o.status = ANY($2)")
	assert.Contains(t, query, "o.created_at >= $3")
	assert.Contains(t, query, "o.created_at < $4")
	assert.Len(t, args, 4)
}

func TestBuildOrderQuery_PriceBounds(t *testing.T) {
	min := decimal.NewFromFloat(9.99)
	max := decimal.NewFromInt(100)

	query, args := BuildOrderQuery(model.ExportConfig{
		TenantID: "acme",
		MinPrice: &min,
		MaxPrice: &max,
	})

	assert.Contains(t, query, "o.total >= $2")
	assert.Contains(t, query, "o.total <= $3")
	assert.Equal(t, "9.99", args[1])
	assert.Equal(t, "100", args[2])
}

func TestBuildOrderQuery_IdentityFiltersAreORd(t *testing.T) {
	query, args := BuildOrderQuery(model.ExportConfig{
		TenantID:   "acme",
		TitleTerms: []string{"mug", "shirt"},
		ProductIDs: []string{"p-1", "p-2"},
	})

	assert.Contains(t, query, "EXISTS (SELECT 1 FROM suredone.order_items i")
	assert.Contains(t, query, "i.tenant_id = o.tenant_id AND i.order_id = o.order_id")
	assert.Contains(t, query, "(i.title ILIKE $2 OR i.title ILIKE $3 OR i.product_id = ANY($4))")
	assert.Equal(t, "%mug%", args[1])
	assert.Equal(t, "%shirt%", args[2])
	assert.Equal(t, []string{"p-1", "p-2"}, args[3])
}

func TestBuildOrderQuery_IdentityANDdWithStatus(t *testing.T) {
	query, _ := BuildOrderQuery(model.ExportConfig{
		TenantID:   "acme",
		Statuses:   []string{"shipped"},
		TitleTerms: []string{"mug"},
	})

	assert.Contains(t, query, "o.status = ANY($2) AND EXISTS")
	assert.Contains(t, query, "(i.title ILIKE $3)")
}
