package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg/export"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/filters"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/services"
	"go.uber.org/zap"
)

type options struct {
	Site, Key, Secret string
	Months            int
	Start, End        string
	Status, City      string
	AmountMode        string
	Amount            string
	OutDir            string
	Format            string
}

func (o options) criteria() filters.Criteria {
	raw := filters.Raw{
		MonthsAgo:   strconv.Itoa(o.Months),
		Status:      o.Status,
		AmountMode:  o.AmountMode,
		AmountValue: o.Amount,
		City:        o.City,
	}
	if !utils.IsEmpty(o.Start) || !utils.IsEmpty(o.End) {
		raw.DateMode = string(filters.DateModeCustom)
		raw.StartDate, raw.EndDate = o.Start, o.End
	}
	return raw.Parse()
}

func (o options) formats() ([]export.Format, error) {
	switch o.Format {
	case "json":
		return []export.Format{export.FormatJSON}, nil
	case "xlsx":
		return []export.Format{export.FormatXLSX}, nil
	case "both", "":
		return []export.Format{export.FormatJSON, export.FormatXLSX}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", o.Format)
	}
}

// run fetches, filters and writes the requested files. An empty result is a notice, not an error.
func run(ctx context.Context, logger *zap.Logger, fetcher services.Fetcher, o options, stdout io.Writer) error {
	formats, err := o.formats()
	if err != nil {
		return err
	}
	c := o.criteria()

	res, err := fetcher.Fetch(ctx, woocommerce.FetchRequest{
		Credentials: woocommerce.Credentials{SiteURL: o.Site, ConsumerKey: o.Key, ConsumerSecret: o.Secret},
		Criteria:    c,
	}, func(p woocommerce.Progress) {
		_, _ = fmt.Fprintln(stdout, p.String())
	})
	if err != nil {
		return err
	}
	if res.Warning != "" {
		_, _ = fmt.Fprintln(stdout, res.Warning)
	}

	orders := filters.Apply(res.Orders, c, time.Now())
	_, _ = fmt.Fprintf(stdout, "Total Orders: %d\n", len(orders))

	if err := os.MkdirAll(o.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, f := range formats {
		path := filepath.Join(o.OutDir, f.FileName())
		if err := writeFile(path, f, orders); err != nil {
			if errors.Is(err, export.ErrNothingToExport) {
				_, _ = fmt.Fprintln(stdout, "No orders to export")
				return nil
			}
			return err
		}
		logger.Info("export_written", zap.String("path", path), zap.Int("orders", len(orders)))
		_, _ = fmt.Fprintln(stdout, "Wrote", path)
	}
	return nil
}

func writeFile(path string, format export.Format, orders []models.Order) (err error) {
	// nothing is created for an empty set
	if len(orders) == 0 {
		return export.ErrNothingToExport
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return export.Write(f, format, orders)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if !utils.IsEmpty(v) {
			return v
		}
	}
	return ""
}
