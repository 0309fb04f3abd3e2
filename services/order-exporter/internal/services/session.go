package services

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/export"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/filters"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/observability"
	"go.uber.org/zap"
)

// Fetcher retrieves a complete order set for one request.
type Fetcher interface {
	Fetch(ctx context.Context, req woocommerce.FetchRequest, progress woocommerce.ProgressFunc) (woocommerce.FetchResult, error)
}

// ExportScope selects the export source: the whole aggregate or the filtered view.
type ExportScope string

const (
	ScopeAll      ExportScope = "all"
	ScopeFiltered ExportScope = "filtered"
)

// ParseScope defaults to ScopeFiltered for anything but "all".
func ParseScope(s string) ExportScope {
	if ExportScope(s) == ScopeAll {
		return ScopeAll
	}
	return ScopeFiltered
}

// Status is a point-in-time view of a session, safe to read while a fetch runs.
type Status struct {
	ID         string            `json:"sessionId"`
	State      woocommerce.State `json:"state"`
	Pages      int               `json:"pages"`
	Fetched    int               `json:"fetched"`
	Total      int               `json:"total"`
	Progress   string            `json:"progress,omitempty"`
	Warning    string            `json:"warning,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// FilterResult is the filtered view next to the size of the aggregate it came from.
type FilterResult struct {
	Total    int            `json:"total"`
	Filtered int            `json:"filtered"`
	Orders   []models.Order `json:"orders"`
}

// Session owns one aggregate. A single fetch writes it; filters and exports read snapshots.
type Session struct {
	id      string
	fetcher Fetcher
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.RWMutex
	orders     []models.Order
	state      woocommerce.State
	pages      int
	fetched    int
	warning    string
	lastErr    error
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	lastAccess time.Time
}

func newSession(id string, fetcher Fetcher, logger *zap.Logger, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:         id,
		fetcher:    fetcher,
		logger:     logger.With(zap.String(pkg.SessionId, id)),
		now:        now,
		orders:     []models.Order{},
		state:      woocommerce.StateIdle,
		createdAt:  created,
		lastAccess: created,
	}
}

func (s *Session) ID() string { return s.id }

// Fetch runs a fetch to completion. On success the aggregate is replaced wholesale;
// on failure the previous aggregate is kept and the error recorded.
func (s *Session) Fetch(ctx context.Context, req woocommerce.FetchRequest) (Status, error) {
	if err := s.begin(); err != nil {
		return s.Status(), err
	}
	err := s.run(ctx, req)
	return s.Status(), err
}

// begin claims the session for one fetch, refusing while another is in flight.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == woocommerce.StateFetching {
		return pkg.NewAppError(pkg.ErrFetchInProgressCode, pkg.ErrFetchInProgressCode.Message, pkg.ErrFetchInProgress)
	}
	s.state = woocommerce.StateFetching
	s.pages, s.fetched = 0, 0
	s.warning, s.lastErr = "", nil
	s.startedAt = s.now()
	s.finishedAt = time.Time{}
	s.lastAccess = s.startedAt
	return nil
}

func (s *Session) run(ctx context.Context, req woocommerce.FetchRequest) error {
	s.logger.Info("session_fetch_started", zap.String("site", req.Credentials.SiteURL))

	res, err := s.fetcher.Fetch(ctx, req, func(p woocommerce.Progress) {
		s.mu.Lock()
		s.pages, s.fetched = p.Page, p.Fetched
		s.mu.Unlock()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedAt = s.now()
	s.lastAccess = s.finishedAt
	if err != nil {
		s.state = woocommerce.StateError
		s.lastErr = err
		observability.FetchFailures.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("session_fetch_failed", zap.Int("kept_orders", len(s.orders)), zap.Error(err))
		return err
	}
	s.orders = res.Orders
	s.state = res.State
	s.pages = res.Pages
	s.fetched = len(res.Orders)
	s.warning = res.Warning
	s.logger.Info("session_aggregate_replaced",
		zap.String("state", string(res.State)),
		zap.Int("orders", len(res.Orders)))
	return nil
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		ID:        s.id,
		State:     s.state,
		Pages:     s.pages,
		Fetched:   s.fetched,
		Total:     len(s.orders),
		Warning:   s.warning,
		CreatedAt: s.createdAt,
	}
	if s.state == woocommerce.StateFetching {
		st.Progress = woocommerce.Progress{Page: s.pages, Fetched: s.fetched}.String()
	}
	if s.lastErr != nil {
		st.Error = errorMessage(s.lastErr)
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		st.StartedAt = &started
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		st.FinishedAt = &finished
	}
	return st
}

// Orders returns a copy of the aggregate.
func (s *Session) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.orders)
}

// Filtered applies the criteria to the current aggregate, anchored at the current time.
func (s *Session) Filtered(c filters.Criteria) FilterResult {
	s.mu.RLock()
	orders := s.orders
	s.mu.RUnlock()

	out := filters.Apply(orders, c, s.now())
	return FilterResult{Total: len(orders), Filtered: len(out), Orders: out}
}

// Order looks up one order of the aggregate by id.
func (s *Session) Order(id int64) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return models.Order{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "order not found", pkg.ErrOrderNotFound)
}

// Export writes the selected order set in the requested format.
func (s *Session) Export(w io.Writer, format export.Format, scope ExportScope, c filters.Criteria) error {
	orders := s.Orders()
	if scope == ScopeFiltered {
		orders = filters.Apply(orders, c, s.now())
	}
	if err := export.Write(w, format, orders); err != nil {
		return err
	}
	observability.Exports.WithLabelValues(string(format)).Inc()
	s.logger.Info("session_exported",
		zap.String("format", string(format)),
		zap.String("scope", string(scope)),
		zap.Int("orders", len(orders)))
	return nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = s.now()
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != woocommerce.StateFetching && now.Sub(s.lastAccess) > ttl
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case pkg.IsCode(err, pkg.ErrConfigurationCode):
		return "configuration"
	case pkg.IsCode(err, pkg.ErrUpstreamCode):
		return "upstream"
	default:
		return "internal"
	}
}

// errorMessage prefers the public message of an AppError.
func errorMessage(err error) string {
	var appErr pkg.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
