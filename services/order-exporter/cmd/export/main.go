// Command export runs one fetch against a store, applies the filters given as flags and
// writes the export files into a directory.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/configs"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/services"
	"go.uber.org/zap"
)

func main() {
	site := flag.String("site", "", "Store URL (default APP_WC_SITE_URL)")
	key := flag.String("key", "", "Consumer key (default APP_WC_CONSUMER_KEY)")
	secret := flag.String("secret", "", "Consumer secret (default APP_WC_CONSUMER_SECRET)")
	months := flag.Int("months", 0, "Only orders of the last N months, 0 for all time")
	start := flag.String("start", "", "Custom range start date, YYYY-MM-DD")
	end := flag.String("end", "", "Custom range end date, YYYY-MM-DD")
	status := flag.String("status", "", "Exact order status")
	city := flag.String("city", "", "Billing city substring")
	amountMode := flag.String("amount-mode", "all", "all, equals, greater or less")
	amount := flag.String("amount", "", "Amount compared by -amount-mode")
	out := flag.String("out", "", "Output directory (default APP_EXPORT_DIR)")
	format := flag.String("format", "both", "json, xlsx or both")

	flag.Parse()

	pkg.InitLogger()
	logger := pkg.Logger
	defer func() { _ = logger.Sync() }()

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	opts := options{
		Site:       firstNonEmpty(*site, cfg.SiteURL),
		Key:        firstNonEmpty(*key, cfg.ConsumerKey),
		Secret:     firstNonEmpty(*secret, cfg.ConsumerSecret),
		Months:     *months,
		Start:      *start,
		End:        *end,
		Status:     *status,
		City:       *city,
		AmountMode: *amountMode,
		Amount:     *amount,
		OutDir:     firstNonEmpty(*out, cfg.ExportDir),
		Format:     *format,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := services.NewFetcher(logger, cfg, nil)
	if err := run(ctx, logger, fetcher, opts, os.Stdout); err != nil {
		logger.Error("export_failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
