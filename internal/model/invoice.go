package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is the fiscal record issued once per paid order.
// Net is the discounted merchandise amount with tax included; Base and Tax split it.
type Invoice struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	OrderID  uuid.UUID       `json:"orderId" db:"order_id"`
	Number   string          `json:"number" db:"number"`
	Net      int64           `json:"net" db:"net"`
	Base     int64           `json:"base" db:"base"`
	Tax      int64           `json:"tax" db:"tax"`
	TaxRate  decimal.Decimal `json:"taxRate" db:"tax_rate"`
	Shipping int64           `json:"shipping" db:"shipping"`
	Total    int64           `json:"total" db:"total"`
	IssuedAt time.Time       `json:"issuedAt" db:"issued_at"`
	Items    []InvoiceItem   `json:"items"`
}

// InvoiceItem mirrors an order line on the invoice.
type InvoiceItem struct {
	Description string `json:"description"`
	Size        string `json:"size,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}
