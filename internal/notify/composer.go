package notify

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"storefront/internal/inventory"
	"storefront/internal/model"
	"storefront/internal/pricing"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	KindOrderConfirmation      = "order_confirmation"
	KindAdminNewOrder          = "admin_new_order"
	KindStockAlert             = "stock_alert"
	KindCancellationProcessing = "cancellation_processing"
	KindCancellationCompleted  = "cancellation_completed"
	KindAdminCancellation      = "admin_cancellation"
	KindOrderStatus            = "order_status"
	KindReturnCreated          = "return_created"
	KindAdminReturn            = "admin_return"
	KindReturnStatus           = "return_status"
)

var statusLabels = map[model.OrderStatus]string{
	model.OrderStatusPaid:           "pagado",
	model.OrderStatusShipped:        "enviado",
	model.OrderStatusReadyForPickup: "listo para recoger",
	model.OrderStatusDelivered:      "entregado",
	model.OrderStatusCancelled:      "cancelado",
}

var returnLabels = map[model.ReturnStatus]string{
	model.ReturnStatusReceived: "recibida",
	model.ReturnStatusRefunded: "reembolsada",
	model.ReturnStatusRejected: "rechazada",
}

// Composer renders notification intents. Bodies are plain HTML fragments.
type Composer struct {
	baseURL  string
	currency string
	admins   []string
	now      func() time.Time
}

// NewComposer creates a composer. With no admins, admin notifications are skipped.
func NewComposer(baseURL, currency string, admins []string) *Composer {
	return &Composer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: currency,
		admins:   admins,
		now:      time.Now,
	}
}

// OrderConfirmed returns the customer confirmation and one new-order notice per admin.
func (c *Composer) OrderConfirmed(o *model.Order, items []model.OrderItem, inv *model.Invoice) []model.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Gracias por tu pedido, %s</h1>", esc(o.Customer.Name))
	fmt.Fprintf(&b, "<p>Pedido <strong>%s</strong></p>", esc(o.Number))
	c.writeItems(&b, items)
	c.writeTotals(&b, o)
	if inv != nil {
		fmt.Fprintf(&b, "<p>Factura %s: base %s, IVA %s</p>", esc(inv.Number), c.money(inv.Base), c.money(inv.Tax))
	}
	fmt.Fprintf(&b, `<p><a href="%s">Ver pedido</a></p>`, esc(c.orderURL(o)))

	out := []model.Notification{
		c.email(KindOrderConfirmation, o.Customer.Email, "Confirmación de pedido "+o.Number, b.String()),
	}

	var admin strings.Builder
	fmt.Fprintf(&admin, "<p>Nuevo pedido <strong>%s</strong> de %s (%s)</p>", esc(o.Number), esc(o.Customer.Name), esc(o.Customer.Email))
	fmt.Fprintf(&admin, "<p>Envío: %s</p>", esc(string(o.ShippingMethod)))
	if o.ShippingMethod != model.ShippingPickup {
		fmt.Fprintf(&admin, "<p>%s, %s %s, %s</p>", esc(o.Customer.Address), esc(o.Customer.PostalCode), esc(o.Customer.City), esc(o.Customer.Country))
	}
	c.writeItems(&admin, items)
	c.writeTotals(&admin, o)
	for _, to := range c.admins {
		out = append(out, c.email(KindAdminNewOrder, to, "Nuevo pedido "+o.Number, admin.String()))
	}
	return out
}

// StockAlert batches all alerts into one notification addressed to every admin.
func (c *Composer) StockAlert(orderNumber string, alerts []inventory.Alert) []model.Notification {
	if len(alerts) == 0 || len(c.admins) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Alertas de stock tras el pedido %s</p><ul>", esc(orderNumber))
	for _, a := range alerts {
		label := esc(a.Name)
		if a.Key.Size != "" {
			label += " (talla " + esc(a.Key.Size) + ")"
		}
		switch a.Level {
		case inventory.LevelOversold:
			fmt.Fprintf(&b, "<li><strong>Sobreventa</strong>: %s, faltan %d unidades</li>", label, a.Shortfall)
		case inventory.LevelOutOfStock:
			fmt.Fprintf(&b, "<li><strong>Agotado</strong>: %s</li>", label)
		default:
			fmt.Fprintf(&b, "<li>Stock bajo: %s, quedan %d</li>", label, a.Remaining)
		}
	}
	b.WriteString("</ul>")

	return []model.Notification{
		c.email(KindStockAlert, strings.Join(c.admins, ","), "Alerta de stock", b.String()),
	}
}

// CancellationProcessing tells the customer the cancellation has started.
func (c *Composer) CancellationProcessing(o *model.Order) model.Notification {
	body := fmt.Sprintf("<p>Estamos procesando la cancelación del pedido <strong>%s</strong>.</p>", esc(o.Number))
	return c.email(KindCancellationProcessing, o.Customer.Email, "Cancelando tu pedido "+o.Number, body)
}

// CancellationCompleted confirms the refund to the customer and notifies admins.
func (c *Composer) CancellationCompleted(o *model.Order, refunded int64) []model.Notification {
	body := fmt.Sprintf("<p>Tu pedido <strong>%s</strong> ha sido cancelado. Reembolsaremos %s en tu método de pago.</p>",
		esc(o.Number), c.money(refunded))
	out := []model.Notification{
		c.email(KindCancellationCompleted, o.Customer.Email, "Pedido "+o.Number+" cancelado", body),
	}
	admin := fmt.Sprintf("<p>El cliente %s ha cancelado el pedido %s. Reembolso: %s.</p>",
		esc(o.Customer.Email), esc(o.Number), c.money(refunded))
	for _, to := range c.admins {
		out = append(out, c.email(KindAdminCancellation, to, "Pedido cancelado "+o.Number, admin))
	}
	return out
}

// StatusUpdate tells the customer the order moved to a new status.
func (c *Composer) StatusUpdate(o *model.Order) model.Notification {
	label := statusLabels[o.Status]
	if label == "" {
		label = string(o.Status)
	}
	body := fmt.Sprintf("<p>Tu pedido <strong>%s</strong> está ahora: %s.</p>", esc(o.Number), esc(label))
	if o.Status == model.OrderStatusReadyForPickup {
		body += "<p>Puedes pasar a recogerlo por la tienda.</p>"
	}
	body += fmt.Sprintf(`<p><a href="%s">Ver pedido</a></p>`, esc(c.orderURL(o)))
	return c.email(KindOrderStatus, o.Customer.Email, "Actualización del pedido "+o.Number, body)
}

// ReturnCreated sends the label to the customer and notifies admins.
func (c *Composer) ReturnCreated(o *model.Order, r *model.Return) []model.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hemos registrado tu devolución <strong>%s</strong> del pedido %s.</p>", esc(r.Reference), esc(o.Number))
	b.WriteString("<ul>")
	for _, it := range r.Items {
		fmt.Fprintf(&b, "<li>%s%s x%d</li>", esc(it.ProductName), sizeSuffix(it.Size), it.Quantity)
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Importe a reembolsar: %s</p>", c.money(r.RefundAmount))
	b.WriteString("<p>Adjuntamos la etiqueta de envío.</p>")

	customer := c.email(KindReturnCreated, o.Customer.Email, "Devolución "+r.Reference, b.String())
	if r.LabelKey != "" {
		customer.AttachmentKey = r.LabelKey
		customer.AttachmentName = "etiqueta-" + r.Reference + ".pdf"
	}
	out := []model.Notification{customer}

	admin := fmt.Sprintf("<p>Nueva devolución %s del pedido %s (%s). Importe: %s. Motivo: %s</p>",
		esc(r.Reference), esc(o.Number), esc(o.Customer.Email), c.money(r.RefundAmount), esc(r.Reason))
	for _, to := range c.admins {
		out = append(out, c.email(KindAdminReturn, to, "Nueva devolución "+r.Reference, admin))
	}
	return out
}

// ReturnStatus tells the customer the return moved to a new status.
func (c *Composer) ReturnStatus(o *model.Order, r *model.Return) model.Notification {
	label := returnLabels[r.Status]
	if label == "" {
		label = string(r.Status)
	}
	body := fmt.Sprintf("<p>Tu devolución <strong>%s</strong> ha sido %s.</p>", esc(r.Reference), esc(label))
	switch r.Status {
	case model.ReturnStatusRefunded:
		body += fmt.Sprintf("<p>Hemos reembolsado %s.</p>", c.money(r.RefundAmount))
	case model.ReturnStatusRejected:
		if r.AdminNotes != nil && *r.AdminNotes != "" {
			body += fmt.Sprintf("<p>Motivo: %s</p>", esc(*r.AdminNotes))
		}
	}
	return c.email(KindReturnStatus, o.Customer.Email, "Devolución "+r.Reference, body)
}

// Event wraps a domain event for the event channel.
func (c *Composer) Event(eventType, aggregateID string, payload any) (model.Notification, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Notification{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return model.Notification{
		ID:        uuid.New(),
		Channel:   model.ChannelEvent,
		Kind:      eventType,
		Recipient: aggregateID,
		Body:      string(data),
		Status:    model.NotificationPending,
		CreatedAt: c.now().UTC(),
	}, nil
}

func (c *Composer) email(kind, to, subject, body string) model.Notification {
	return model.Notification{
		ID:        uuid.New(),
		Channel:   model.ChannelEmail,
		Kind:      kind,
		Recipient: to,
		Subject:   subject,
		Body:      body,
		Status:    model.NotificationPending,
		CreatedAt: c.now().UTC(),
	}
}

func (c *Composer) writeItems(b *strings.Builder, items []model.OrderItem) {
	b.WriteString("<ul>")
	for _, it := range items {
		fmt.Fprintf(b, "<li>%s%s x%d: %s</li>", esc(it.ProductName), sizeSuffix(it.Size), it.Quantity, c.money(it.LineTotal()))
	}
	b.WriteString("</ul>")
}

func (c *Composer) writeTotals(b *strings.Builder, o *model.Order) {
	fmt.Fprintf(b, "<p>Subtotal: %s<br>", c.money(o.Subtotal))
	if o.Discount > 0 {
		fmt.Fprintf(b, "Descuento: -%s<br>", c.money(o.Discount))
	}
	fmt.Fprintf(b, "Envío: %s<br><strong>Total: %s</strong></p>", c.money(o.ShippingCost), c.money(o.Total))
}

func (c *Composer) orderURL(o *model.Order) string {
	return c.baseURL + "/pedidos/" + o.ID.String()
}

func (c *Composer) money(amount int64) string {
	return esc(pricing.FormatAmount(amount, c.currency))
}

func sizeSuffix(size string) string {
	if size == "" {
		return ""
	}
	return " (" + esc(size) + ")"
}

func esc(s string) string {
	return html.EscapeString(s)
}
