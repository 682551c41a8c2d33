package cart

import (
	"fmt"
	"sync"

	"storefront/internal/model"
	"storefront/internal/pricing"
)

var (
	// ErrOutOfStock is returned when adding a line whose stock ceiling is zero.
	ErrOutOfStock = model.NewDomainError(model.KindInsufficientStock, model.ErrCodeInsufficientStock, "Producto agotado")
	// ErrLineNotFound is returned when updating a line that is not in the cart.
	ErrLineNotFound = model.NewDomainError(model.KindNotFound, model.ErrCodeProductNotFound, "El producto no está en el carrito")
)

// Line is one (product, size) entry of the cart.
// MaxStock is the stock ceiling observed when the line was added.
type Line struct {
	ProductID int64  `json:"productId"`
	Size      string `json:"size,omitempty"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	MaxStock  int    `json:"maxStock"`
}

// Key identifies the line by product and size.
func (l Line) Key() string {
	return fmt.Sprintf("%d:%s", l.ProductID, l.Size)
}

// Total returns unit price times quantity.
func (l Line) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// State is the persisted form of a cart.
type State struct {
	Lines []Line `json:"lines"`
	Open  bool   `json:"open"`
}

// Cart is a client-held collection of lines. Every mutation persists the full state.
type Cart struct {
	mu    sync.Mutex
	store Store
	lines []Line
	open  bool
}

// New restores a cart from store.
func New(store Store) (*Cart, error) {
	state, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	c := &Cart{store: store, open: state.Open}
	for _, l := range state.Lines {
		if l.Quantity > 0 {
			c.lines = append(c.lines, l)
		}
	}
	return c, nil
}

// Add merges line into the cart by key, clamping the quantity to the stock ceiling.
func (c *Cart) Add(line Line) error {
	if line.Quantity <= 0 {
		return model.ErrInvalidQuantity
	}
	if line.MaxStock <= 0 {
		return ErrOutOfStock
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(line.Key()); i >= 0 {
		existing := c.lines[i]
		existing.MaxStock = line.MaxStock
		existing.Quantity = min(existing.Quantity+line.Quantity, line.MaxStock)
		c.lines[i] = existing
	} else {
		line.Quantity = min(line.Quantity, line.MaxStock)
		c.lines = append(c.lines, line)
	}
	return c.persist(true)
}

// UpdateQuantity sets the quantity of a line, clamped to [1, MaxStock].
// A quantity of zero or less removes the line.
func (c *Cart) UpdateQuantity(productID int64, size string, quantity int) error {
	if quantity <= 0 {
		return c.Remove(productID, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(Line{ProductID: productID, Size: size}.Key())
	if i < 0 {
		return ErrLineNotFound
	}
	c.lines[i].Quantity = max(1, min(quantity, c.lines[i].MaxStock))
	return c.persist(true)
}

// Remove deletes a line. Removing an absent line is not an error.
func (c *Cart) Remove(productID int64, size string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(Line{ProductID: productID, Size: size}.Key()); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
	return c.persist(true)
}

// Clear empties the cart, typically after a confirmed order.
func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = nil
	return c.persist(false)
}

// Close marks the cart drawer closed without touching its lines.
func (c *Cart) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.persist(false)
}

// IsOpen reports whether the last mutation opened the cart.
func (c *Cart) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Lines returns a copy of the cart lines.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// ItemCount returns the sum of quantities.
func (c *Cart) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Subtotal returns the sum of unit price times quantity.
func (c *Cart) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subtotal()
}

// Quote prices the cart for a shipping method and an already validated discount.
func (c *Cart) Quote(rates pricing.ShippingRates, method model.ShippingMethod, discount int64) (pricing.Quote, error) {
	return rates.NewQuote(c.Subtotal(), method, discount)
}

// Items projects the cart onto checkout line items.
func (c *Cart) Items() []model.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]model.LineItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, model.LineItem{
			ProductID: l.ProductID,
			Size:      l.Size,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return items
}

func (c *Cart) subtotal() int64 {
	var total int64
	for _, l := range c.lines {
		total += l.Total()
	}
	return total
}

func (c *Cart) indexOf(key string) int {
	for i, l := range c.lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (c *Cart) persist(open bool) error {
	c.open = open
	lines := make([]Line, len(c.lines))
	copy(lines, c.lines)
	if err := c.store.Save(State{Lines: lines, Open: open}); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
