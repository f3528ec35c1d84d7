package exports

import (
	"fmt"
	"strings"

	"github.com/dropified/suredone-adapter/pkg/model"
)

// BuildOrderQuery turns an export config into a SQL query selecting the
// matching order IDs. Status, date and price filters narrow the result;
// title terms and known product IDs widen each other (a line matching
// either one qualifies the order). Item filters are checked with EXISTS
// so that orders without line items still match when no item filter is
// configured.
func BuildOrderQuery(cfg model.ExportConfig) (string, []any) {
	var (
		conds []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds = append(conds, "o.tenant_id = "+arg(cfg.TenantID))

	if len(cfg.Statuses) > 0 {
		conds = append(conds, "o.status = ANY("+arg(cfg.Statuses)+")")
	}
	if cfg.Since != nil {
		conds = append(conds, "o.created_at >= "+arg(*cfg.Since))
	}
	if cfg.Until != nil {
		conds = append(conds, "o.created_at < "+arg(*cfg.Until))
	}
	if cfg.MinPrice != nil {
		conds = append(conds, "o.total >= "+arg(cfg.MinPrice.String()))
	}
	if cfg.MaxPrice != nil {
		conds = append(conds, "o.total <= "+arg(cfg.MaxPrice.String()))
	}

	var identity []string
	for _, term := range cfg.TitleTerms {
		identity = append(identity, "i.title ILIKE "+arg("%"+term+"%"))
	}
	if len(cfg.ProductIDs) > 0 {
		identity = append(identity, "i.product_id = ANY("+arg(cfg.ProductIDs)+")")
	}
	if len(identity) > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM suredone.order_items i"+
			" WHERE i.tenant_id = o.tenant_id AND i.order_id = o.order_id"+
			" AND ("+strings.Join(identity, " OR ")+"))")
	}

	query := `
		SELECT o.order_id
		FROM suredone.orders o
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY o.order_id`

	return query, args
}
