package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Format of a downloadable artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

func (f Format) FileName() string {
	if f == FormatXLSX {
		return XLSXFileName
	}
	return JSONFileName
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return XLSXContentType
	}
	return JSONContentType
}

// Write renders orders in the given format.
func Write(w io.Writer, format Format, orders []models.Order) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, orders)
	case FormatXLSX:
		return WriteXLSX(w, orders)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteJSON writes the flat records as an indented JSON array.
func WriteJSON(w io.Writer, orders []models.Order) error {
	records, err := Records(orders)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export records: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// WriteXLSX writes a workbook with the summary and line item sheets.
func WriteXLSX(w io.Writer, orders []models.Order) error {
	summary, detail, err := Sheets(orders)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), summary.Name); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(detail.Name); err != nil {
		return fmt.Errorf("create sheet %s: %w", detail.Name, err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for _, t := range []Table{summary, detail} {
		if err := writeTable(f, t, headerStyle); err != nil {
			return fmt.Errorf("write sheet %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeTable(f *excelize.File, t Table, headerStyle int) error {
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(t.Name, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &row); err != nil {
			return err
		}
	}
	for i, width := range ColumnWidths(t) {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(t.Name, col, col, width); err != nil {
			return err
		}
	}
	return nil
}
