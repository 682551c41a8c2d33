// Package label renders return shipping labels.
package label

import (
	"bytes"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/go-pdf/fpdf"
)

// ContentType is the MIME type of generated labels.
const ContentType = "application/pdf"

// Data is what a label shows.
type Data struct {
	Reference   string
	OrderNumber string
	Customer    model.Customer
	Items       []model.ReturnItem
	Store       Address
	CreatedAt   time.Time
}

// Address is the return destination.
type Address struct {
	Name       string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// Generator renders a label document.
type Generator interface {
	Generate(data Data) ([]byte, error)
}

type pdfGenerator struct{}

// NewPDFGenerator creates an A5 PDF label generator.
func NewPDFGenerator() Generator {
	return pdfGenerator{}
}

func (pdfGenerator) Generate(data Data) ([]byte, error) {
	if data.Reference == "" {
		return nil, fmt.Errorf("label reference is required")
	}

	pdf := fpdf.New("P", "mm", "A5", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Etiqueta de devolución "+data.Reference, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr("Devolución "+data.Reference), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Pedido "+data.OrderNumber+" · "+data.CreatedAt.Format("02/01/2006")), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	section := func(title string, lines ...string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, tr(title), "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		for _, l := range lines {
			if l != "" {
				pdf.CellFormat(0, 6, tr(l), "", 1, "L", false, 0, "")
			}
		}
		pdf.Ln(4)
	}

	c := data.Customer
	section("Remitente", c.Name, c.Address, joinNonEmpty(c.PostalCode, c.City), c.Country, c.Phone)
	s := data.Store
	section("Destinatario", s.Name, s.Street, joinNonEmpty(s.PostalCode, s.City), s.Country)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, tr("Artículos"), "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, it := range data.Items {
		name := it.ProductName
		if it.Size != "" {
			name += " (" + it.Size + ")"
		}
		pdf.CellFormat(100, 6, tr(name), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("x%d", it.Quantity), "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render label %s: %w", data.Reference, err)
	}
	return buf.Bytes(), nil
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
