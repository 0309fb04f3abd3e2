package woocommerce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/filters"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 100
	DefaultMaxPages = 100
	DefaultDelay    = 100 * time.Millisecond
)

// State of one fetch run.
type State string

const (
	StateIdle           State = "idle"
	StateFetching       State = "fetching"
	StateDone           State = "done"
	StateCeilingReached State = "ceiling_reached"
	StateError          State = "error"
)

// Progress is reported once per non-empty page. The total is unknown while paging.
type Progress struct {
	Page    int
	Fetched int
}

func (p Progress) String() string {
	return fmt.Sprintf("Retrieved: %d orders", p.Fetched)
}

type ProgressFunc func(Progress)

// Observer receives fetch lifecycle events, e.g. for metrics.
type Observer interface {
	PageFetched(orders int)
	FetchFinished(state State, orders int, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) PageFetched(int) {}
func (noopObserver) FetchFinished(State, int, time.Duration) {}

// FetchRequest carries credentials and the criteria whose date portion bounds the server query.
type FetchRequest struct {
	Credentials Credentials
	Criteria    filters.Criteria
}

// Bounds validates the request and resolves its server-side date bounds against now.
// Both failures are configuration errors: no request may be issued for them.
func (r FetchRequest) Bounds(now time.Time) (after, before *time.Time, err error) {
	if err := r.Credentials.Validate(); err != nil {
		return nil, nil, err
	}
	after, before, err = r.Criteria.FetchBounds(now)
	if err != nil {
		return nil, nil, pkg.NewAppError(pkg.ErrConfigurationCode, "Please select both start and end dates", err)
	}
	return after, before, nil
}

type FetchResult struct {
	Orders         []models.Order
	Pages          int // pages that returned orders
	State          State
	CeilingReached bool
	Warning        string
	Elapsed        time.Duration
}

type FetcherConfig struct {
	Lister   OrderLister
	Logger   *zap.Logger
	PageSize int
	MaxPages int
	Pacer    pkg.Pacer // waited on between pages; nil uses DelayPacer{DefaultDelay}
	OrderBy  string
	Order    string
	Observer Observer
	Now      func() time.Time
}

// Fetcher drives sequential page requests until an empty page, an error, or the page ceiling.
type Fetcher struct {
	cfg FetcherConfig
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Pacer == nil {
		cfg.Pacer = pkg.DelayPacer{Delay: DefaultDelay}
	}
	if cfg.OrderBy == "" {
		cfg.OrderBy = "date"
	}
	if cfg.Order == "" {
		cfg.Order = "desc"
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg}
}

// Fetch retrieves every page matching the request's date bounds. On error no partial orders are returned.
// Reaching the page ceiling is not an error: the result holds the pages read so far and a warning.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest, progress ProgressFunc) (FetchResult, error) {
	after, before, err := req.Bounds(f.cfg.Now())
	if err != nil {
		return FetchResult{State: StateError}, err
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	start := time.Now()
	logger := f.cfg.Logger.With(zap.String("site", req.Credentials.SiteURL))
	var orders []models.Order
	state := StateFetching
	page := 1

	for state == StateFetching {
		result, err := f.cfg.Lister.ListOrders(ctx, req.Credentials, PageQuery{
			Page:    page,
			PerPage: f.cfg.PageSize,
			After:   after,
			Before:  before,
			OrderBy: f.cfg.OrderBy,
			Order:   f.cfg.Order,
		})
		if err != nil {
			f.cfg.Observer.FetchFinished(StateError, 0, time.Since(start))
			return FetchResult{State: StateError, Elapsed: time.Since(start)}, f.transportError(logger, page, err)
		}

		if len(result.Orders) == 0 {
			state = StateDone
			break
		}

		orders = append(orders, result.Orders...)
		f.cfg.Observer.PageFetched(len(result.Orders))
		logger.Info("orders_page_fetched",
			zap.Int("page", page),
			zap.Int("page_size", len(result.Orders)),
			zap.Int("fetched", len(orders)),
			zap.Int("server_total", result.Total))
		progress(Progress{Page: page, Fetched: len(orders)})

		if page >= f.cfg.MaxPages {
			state = StateCeilingReached
			break
		}
		page++

		if err := f.cfg.Pacer.Wait(ctx); err != nil {
			f.cfg.Observer.FetchFinished(StateError, 0, time.Since(start))
			return FetchResult{State: StateError, Elapsed: time.Since(start)}, f.transportError(logger, page, err)
		}
	}

	res := FetchResult{
		Orders:  orders,
		Pages:   page,
		State:   state,
		Elapsed: time.Since(start),
	}
	if state == StateDone {
		res.Pages = page - 1
	}
	if res.Orders == nil {
		res.Orders = []models.Order{}
	}
	if state == StateCeilingReached {
		res.CeilingReached = true
		res.Warning = fmt.Sprintf("Reached maximum page limit (%d pages). Some orders may not be retrieved.", f.cfg.MaxPages)
		logger.Warn("page_ceiling_reached", zap.Int("max_pages", f.cfg.MaxPages), zap.Int("fetched", len(orders)))
	}
	logger.Info("orders_fetch_completed",
		zap.String("state", string(state)),
		zap.Int("pages", res.Pages),
		zap.Int("fetched", len(orders)),
		zap.Duration("elapsed", res.Elapsed))
	f.cfg.Observer.FetchFinished(state, len(orders), res.Elapsed)
	return res, nil
}

func (f *Fetcher) transportError(logger *zap.Logger, page int, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		logger.Error("orders_page_failed",
			zap.Int("page", page),
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("status", apiErr.Status),
			zap.String("message", apiErr.Message))
		return pkg.NewAppError(pkg.ErrUpstreamCode, apiErr.Error(), apiErr)
	}
	var appErr pkg.AppError
	if errors.As(err, &appErr) {
		return err
	}
	logger.Error("orders_page_failed", zap.Int("page", page), zap.Error(err))
	return pkg.NewAppError(pkg.ErrUpstreamCode, fmt.Sprintf("failed to fetch orders page %d", page), err)
}
