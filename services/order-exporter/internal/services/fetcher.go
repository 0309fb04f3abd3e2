package services

import (
	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/configs"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const requestBudgetKey = "woo:orders:budget"

// NewFetcher builds the paginated fetcher from service config. redisClient may be nil,
// in which case the global request budget is enforced per process only.
func NewFetcher(logger *zap.Logger, cfg *configs.Config, redisClient *redis.Client) *woocommerce.Fetcher {
	httpClient := utils.NewHTTPClient(
		utils.WithClientTimeout(cfg.HTTPTimeout),
		utils.WithResponseHeaderTimeout(cfg.HTTPTimeout),
	)

	pacer := pkg.ChainPacer{pkg.DelayPacer{Delay: cfg.PageDelay}}
	if cfg.GlobalRatePerSec > 0 {
		pacer = append(pacer, pkg.NewRequestBudget(redisClient, requestBudgetKey, cfg.GlobalRatePerSec, cfg.GlobalRateBurst, 0, logger))
	}

	return woocommerce.NewFetcher(woocommerce.FetcherConfig{
		Lister:   woocommerce.NewClient(logger, httpClient, cfg.OrdersPath),
		Logger:   logger,
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
		Pacer:    pacer,
		OrderBy:  cfg.SortField,
		Order:    cfg.SortOrder,
		Observer: observability.FetchObserver{},
	})
}
