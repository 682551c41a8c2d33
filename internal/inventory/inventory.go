package inventory

import (
	"context"
	"fmt"
	"sort"

	"storefront/internal/model"

	"github.com/jackc/pgx/v5"
)

// DefaultLowStockThreshold is the counter value at or below which a low-stock alert is raised.
const DefaultLowStockThreshold = 5

// Key identifies a stock counter. An empty Size addresses the product-level counter.
type Key struct {
	ProductID int64
	Size      string
}

func (k Key) String() string {
	if k.Size == "" {
		return fmt.Sprintf("%d", k.ProductID)
	}
	return fmt.Sprintf("%d/%s", k.ProductID, k.Size)
}

// Demand is a quantity requested against one counter.
type Demand struct {
	Key      Key
	Name     string
	Quantity int
}

// StockChange is the outcome of decrementing one counter.
// Shortfall is the quantity that could not be served because the counter would have gone negative.
type StockChange struct {
	Key       Key
	Name      string
	Remaining int
	Shortfall int
}

// Oversold reports whether the counter was floored at zero.
func (c StockChange) Oversold() bool {
	return c.Shortfall > 0
}

// Ledger performs atomic counter updates inside a caller-owned transaction.
type Ledger interface {
	// Decrement subtracts quantity from the counter, never letting it go below zero.
	Decrement(ctx context.Context, tx pgx.Tx, key Key, quantity int) (remaining, shortfall int, err error)

	// Increment adds quantity back to the counter.
	Increment(ctx context.Context, tx pgx.Tx, key Key, quantity int) error
}

// Aggregate sums quantities by key so each counter is touched once.
// The result is sorted by key to give concurrent transactions a stable lock order.
func Aggregate(items []model.OrderItem) []Demand {
	index := make(map[Key]int, len(items))
	var out []Demand
	for _, it := range items {
		k := Key{ProductID: it.ProductID, Size: it.Size}
		if i, ok := index[k]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[k] = len(out)
		out = append(out, Demand{Key: k, Name: it.ProductName, Quantity: it.Quantity})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ProductID != out[j].Key.ProductID {
			return out[i].Key.ProductID < out[j].Key.ProductID
		}
		return out[i].Key.Size < out[j].Key.Size
	})
	return out
}

// Apply decrements every demand through the ledger.
func Apply(ctx context.Context, ledger Ledger, tx pgx.Tx, demands []Demand) ([]StockChange, error) {
	changes := make([]StockChange, 0, len(demands))
	for _, d := range demands {
		remaining, shortfall, err := ledger.Decrement(ctx, tx, d.Key, d.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock for %s: %w", d.Key, err)
		}
		changes = append(changes, StockChange{
			Key:       d.Key,
			Name:      d.Name,
			Remaining: remaining,
			Shortfall: shortfall,
		})
	}
	return changes, nil
}

// Restock increments every demand through the ledger.
func Restock(ctx context.Context, ledger Ledger, tx pgx.Tx, demands []Demand) error {
	for _, d := range demands {
		if err := ledger.Increment(ctx, tx, d.Key, d.Quantity); err != nil {
			return fmt.Errorf("failed to restock %s: %w", d.Key, err)
		}
	}
	return nil
}

// AlertLevel classifies a post-decrement counter.
type AlertLevel string

const (
	LevelOversold   AlertLevel = "oversold"
	LevelOutOfStock AlertLevel = "out_of_stock"
	LevelLowStock   AlertLevel = "low_stock"
)

// Alert is one entry of the batched stock notification.
type Alert struct {
	Key       Key
	Name      string
	Level     AlertLevel
	Remaining int
	Shortfall int
}

// Classify returns alerts for counters that are oversold, at zero, or at or below threshold.
func Classify(changes []StockChange, threshold int) []Alert {
	var alerts []Alert
	for _, c := range changes {
		a := Alert{Key: c.Key, Name: c.Name, Remaining: c.Remaining, Shortfall: c.Shortfall}
		switch {
		case c.Oversold():
			a.Level = LevelOversold
		case c.Remaining == 0:
			a.Level = LevelOutOfStock
		case c.Remaining <= threshold:
			a.Level = LevelLowStock
		default:
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts
}
