// Package export reshapes an order set into the flat JSON records and the two-sheet workbook
// offered for download. Projection is read-only: input orders are never modified.
package export

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
)

const (
	JSONFileName = "woocommerce_orders.json"
	XLSXFileName = "woocommerce_orders.xlsx"

	JSONContentType = "application/json"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	SummarySheet = "Orders"
	DetailSheet  = "Line Items"

	// NotAvailable replaces a missing SKU or variation id in the detail sheet.
	NotAvailable = "N/A"
	// MaxColumnWidth clamps computed column widths, in characters.
	MaxColumnWidth = 50

	CartSeparator = ", "
	dateLayout    = "2006-01-02 15:04:05"
)

// ErrNothingToExport is returned for an empty order set. It is a notice for the user, not a failure.
var ErrNothingToExport = pkg.NewAppError(pkg.ErrExportEmptyCode, pkg.ErrExportEmptyCode.Message, errors.New("empty order set"))

// Record is the flat per-order shape of the JSON export.
type Record struct {
	ID        int64    `json:"id"`
	Number    string   `json:"number,omitempty"`
	Date      string   `json:"date"`
	Status    string   `json:"status"`
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	Email     string   `json:"email,omitempty"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Address   string   `json:"address"`
	Amount    *float64 `json:"amount"` // null when the total is not a number
	Currency  string   `json:"currency,omitempty"`
	ItemCount int      `json:"itemCount"`
	Quantity  int      `json:"quantity"`
	Cart      string   `json:"cart"`
}

// Table is one sheet: a header row and rows of cell values in header order.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

var (
	summaryHeader = []string{"Order ID", "Date", "Status", "Customer", "Phone", "City", "State", "Address", "Total", "Currency", "Items", "Quantity", "Cart"}
	detailHeader  = []string{"Order ID", "Product ID", "Product", "Quantity", "Unit Price", "Line Total", "SKU", "Variation ID", "Options"}
)

// Records projects each order into a flat Record, in input order.
func Records(orders []models.Order) ([]Record, error) {
	if len(orders) == 0 {
		return nil, ErrNothingToExport
	}
	out := make([]Record, 0, len(orders))
	for _, o := range orders {
		r := Record{
			ID:        o.ID,
			Number:    o.Number,
			Date:      formatDate(o),
			Status:    o.Status,
			Name:      o.CustomerName(),
			Phone:     o.Billing.Phone,
			Email:     o.Billing.Email,
			City:      o.Billing.City,
			State:     o.Billing.State,
			Address:   o.Billing.Address(),
			Currency:  o.Currency,
			ItemCount: len(o.LineItems),
			Quantity:  totalQuantity(o.LineItems),
			Cart:      CartSummary(o.LineItems),
		}
		if amount, ok := o.Amount(); ok {
			f := amount.InexactFloat64()
			r.Amount = &f
		}
		out = append(out, r)
	}
	return out, nil
}

// Sheets builds the summary table (one row per order) and the detail table (one row per order line item).
func Sheets(orders []models.Order) (summary, detail Table, err error) {
	records, err := Records(orders)
	if err != nil {
		return Table{}, Table{}, err
	}

	summary = Table{Name: SummarySheet, Header: summaryHeader, Rows: make([][]any, 0, len(records))}
	for _, r := range records {
		var amount any = ""
		if r.Amount != nil {
			amount = *r.Amount
		}
		summary.Rows = append(summary.Rows, []any{
			r.ID, r.Date, r.Status, r.Name, r.Phone, r.City, r.State, r.Address,
			amount, r.Currency, r.ItemCount, r.Quantity, r.Cart,
		})
	}

	detail = Table{Name: DetailSheet, Header: detailHeader}
	for _, o := range orders {
		for _, li := range o.LineItems {
			detail.Rows = append(detail.Rows, itemRow(o.ID, li))
		}
	}
	return summary, detail, nil
}

func itemRow(orderID int64, li models.LineItem) []any {
	var lineTotal any = li.Total
	if total, ok := li.LineTotal(); ok {
		lineTotal = total.InexactFloat64()
	}
	sku := li.SKU
	if strings.TrimSpace(sku) == "" {
		sku = NotAvailable
	}
	var variation any = NotAvailable
	if li.VariationID != 0 {
		variation = li.VariationID
	}
	return []any{
		orderID, li.ProductID, li.Name, li.Quantity, li.Price.InexactFloat64(),
		lineTotal, sku, variation, itemOptions(li.MetaData),
	}
}

// CartSummary renders line items as "name (qty×)" joined by CartSeparator.
func CartSummary(items []models.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, li := range items {
		parts = append(parts, fmt.Sprintf("%s (%d×)", li.Name, li.Quantity))
	}
	return strings.Join(parts, CartSeparator)
}

// ColumnWidths sizes each column to its longest rendered cell, header included, clamped to MaxColumnWidth.
func ColumnWidths(t Table) []float64 {
	widths := make([]float64, len(t.Header))
	for i, h := range t.Header {
		widths[i] = float64(utf8.RuneCountInString(h))
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if n := float64(utf8.RuneCountInString(fmt.Sprint(cell))); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i := range widths {
		widths[i] += 2
		if widths[i] > MaxColumnWidth {
			widths[i] = MaxColumnWidth
		}
	}
	return widths
}

func itemOptions(meta []models.MetaData) string {
	var parts []string
	for _, m := range meta {
		if m.Hidden() {
			continue
		}
		parts = append(parts, m.Label()+": "+m.Value())
	}
	return strings.Join(parts, "; ")
}

func totalQuantity(items []models.LineItem) int {
	n := 0
	for _, li := range items {
		n += li.Quantity
	}
	return n
}

func formatDate(o models.Order) string {
	if o.DateCreated.IsZero() {
		return ""
	}
	return o.DateCreated.Format(dateLayout)
}
