package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/andresuchdata/stocklens/internal/domain"
)

// Variants enumerates the catalog: every product variant with its inventory
// item id and raw SKU. SKU-less variants are returned as-is; the report layer
// decides what is reportable.
func (c *Client) Variants(ctx context.Context) ([]domain.InventoryItem, error) {
	params := url.Values{}
	params.Set("fields", "id,variants")

	products, err := c.FetchAll(ctx, "products", params)
	if err != nil {
		return nil, err
	}

	var items []domain.InventoryItem
	for _, product := range products {
		variants, _ := product["variants"].([]any)
		for _, v := range variants {
			variant, ok := v.(map[string]any)
			if !ok {
				continue
			}
			items = append(items, domain.InventoryItem{
				ItemID: asInt64(variant["inventory_item_id"]),
				SKU:    asString(variant["sku"]),
			})
		}
	}
	return items, nil
}

// InventoryLevel reads the current snapshot for one item. Zero or more
// location-scoped records come back; the first one is authoritative for
// single-location reporting. ok is false when the item has no inventory
// level at any location.
func (c *Client) InventoryLevel(ctx context.Context, itemID int64) (locationID int64, available int, ok bool, err error) {
	params := url.Values{}
	params.Set("inventory_item_ids", fmt.Sprintf("%d", itemID))

	levels, err := c.FetchAll(ctx, "inventory_levels", params)
	if err != nil {
		return 0, 0, false, err
	}
	if len(levels) == 0 {
		return 0, 0, false, nil
	}

	first := levels[0]
	return asInt64(first["location_id"]), int(asInt64(first["available"])), true, nil
}

// InventoryAdjustments fetches the item's adjustment history since the given
// time as delta stock events. Not every plan or time window retains history;
// callers fall back to the snapshot policy when this feed is unavailable.
func (c *Client) InventoryAdjustments(ctx context.Context, itemID int64, since time.Time) ([]domain.StockEvent, error) {
	params := url.Values{}
	params.Set("inventory_item_ids", fmt.Sprintf("%d", itemID))
	params.Set("updated_at_min", since.UTC().Format(time.RFC3339))

	records, err := c.FetchAll(ctx, "inventory_levels/adjustments", params)
	if err != nil {
		return nil, err
	}

	events := make([]domain.StockEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, domain.StockEvent{
			ItemID:     itemID,
			OccurredOn: asTime(rec["created_at"]),
			Kind:       domain.EventDelta,
			Delta:      int(asInt64(rec["adjustment"])),
		})
	}
	return events, nil
}

// Orders fetches order line items created since the given time as sale
// events, one per line item per order, dated by the order's creation day.
func (c *Client) Orders(ctx context.Context, since time.Time) ([]domain.SaleEvent, error) {
	params := url.Values{}
	params.Set("status", "any")
	params.Set("created_at_min", since.UTC().Format(time.RFC3339))
	params.Set("fields", "created_at,line_items")

	orders, err := c.FetchAll(ctx, "orders", params)
	if err != nil {
		return nil, err
	}

	var sales []domain.SaleEvent
	for _, order := range orders {
		createdAt := asTime(order["created_at"])
		lineItems, _ := order["line_items"].([]any)
		for _, li := range lineItems {
			line, ok := li.(map[string]any)
			if !ok {
				continue
			}
			qty := int(asInt64(line["quantity"]))
			if qty < 0 {
				qty = 0
			}
			sales = append(sales, domain.SaleEvent{
				OccurredOn: createdAt,
				SKU:        asString(line["sku"]),
				Quantity:   qty,
			})
		}
	}
	return sales, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
