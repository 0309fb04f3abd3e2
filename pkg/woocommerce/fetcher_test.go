package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/filters"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPacer struct{ calls int32 }

func (p *countingPacer) Wait(ctx context.Context) error {
	atomic.AddInt32(&p.calls, 1)
	return ctx.Err()
}

type recordingObserver struct {
	pages    int
	finished State
	orders   int
}

func (r *recordingObserver) PageFetched(int) { r.pages++ }
func (r *recordingObserver) FetchFinished(state State, orders int, _ time.Duration) {
	r.finished = state
	r.orders = orders
}

// mockStore serves pages sized by pageSizes[page-1]; pages past the slice are empty.
// A negative pageSizes entry means "always full" for every page.
func mockStore(t *testing.T, pageSizes []int, requests *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		assert.Equal(t, DefaultOrdersPath, r.URL.Path)
		assert.Equal(t, "ck_test", r.URL.Query().Get("consumer_key"))
		assert.Equal(t, "cs_test", r.URL.Query().Get("consumer_secret"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		size := 0
		switch {
		case len(pageSizes) == 1 && pageSizes[0] < 0:
			size = perPage
		case page >= 1 && page <= len(pageSizes):
			size = pageSizes[page-1]
		}
		orders := make([]models.Order, 0, size)
		for i := 0; i < size; i++ {
			orders = append(orders, models.Order{ID: int64(page*1000 + i), Status: "completed", Total: "1.00"})
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-WP-Total", "100")
		_ = json.NewEncoder(w).Encode(orders)
	}))
}

func newTestFetcher(pacer pkg.Pacer, maxPages, pageSize int, obs Observer) *Fetcher {
	return NewFetcher(FetcherConfig{
		Lister:   NewClient(zap.NewNop(), nil, ""),
		Logger:   zap.NewNop(),
		PageSize: pageSize,
		MaxPages: maxPages,
		Pacer:    pacer,
		Observer: obs,
	})
}

func creds(url string) Credentials {
	return Credentials{SiteURL: url, ConsumerKey: "ck_test", ConsumerSecret: "cs_test"}
}

func TestFetch_StopsOnEmptyPage(t *testing.T) {
	var requests int32
	srv := mockStore(t, []int{50, 50, 0}, &requests)
	defer srv.Close()

	pacer := &countingPacer{}
	obs := &recordingObserver{}
	var progress []Progress
	f := newTestFetcher(pacer, 100, 50, obs)

	res, err := f.Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Len(t, res.Orders, 100)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Pages)
	assert.False(t, res.CeilingReached)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests), "no request after the empty page")
	assert.Equal(t, int32(2), atomic.LoadInt32(&pacer.calls))
	assert.Equal(t, []Progress{{Page: 1, Fetched: 50}, {Page: 2, Fetched: 100}}, progress)
	assert.Equal(t, "Retrieved: 100 orders", progress[1].String())
	assert.Equal(t, 2, obs.pages)
	assert.Equal(t, StateDone, obs.finished)
	assert.Equal(t, 100, obs.orders)
}

func TestFetch_PreservesPageOrder(t *testing.T) {
	var requests int32
	srv := mockStore(t, []int{2, 1}, &requests)
	defer srv.Close()

	res, err := newTestFetcher(pkg.DelayPacer{}, 10, 2, nil).Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, nil)
	require.NoError(t, err)
	require.Len(t, res.Orders, 3)
	assert.Equal(t, []int64{1000, 1001, 2000}, []int64{res.Orders[0].ID, res.Orders[1].ID, res.Orders[2].ID})
}

func TestFetch_CeilingReturnsPartialResult(t *testing.T) {
	var requests int32
	srv := mockStore(t, []int{-1}, &requests)
	defer srv.Close()

	pacer := &countingPacer{}
	res, err := newTestFetcher(pacer, 5, 20, nil).Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, nil)
	require.NoError(t, err)

	assert.Len(t, res.Orders, 5*20)
	assert.Equal(t, StateCeilingReached, res.State)
	assert.True(t, res.CeilingReached)
	assert.Contains(t, res.Warning, "maximum page limit (5 pages)")
	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, int32(5), atomic.LoadInt32(&requests))
	assert.Equal(t, int32(4), atomic.LoadInt32(&pacer.calls), "no pause after the last allowed page")
}

func TestFetch_EmptyStore(t *testing.T) {
	var requests int32
	srv := mockStore(t, nil, &requests)
	defer srv.Close()

	res, err := newTestFetcher(pkg.DelayPacer{}, 10, 10, nil).Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Orders)
	assert.Empty(t, res.Orders)
	assert.Equal(t, 0, res.Pages)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestFetch_APIErrorFailsFast(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = fmt.Fprint(w, `{"code":"woocommerce_rest_cannot_view","message":"Sorry, you cannot list resources.","data":{"status":401}}`)
			return
		}
		_ = json.NewEncoder(w).Encode([]models.Order{{ID: 1}})
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	res, err := newTestFetcher(pkg.DelayPacer{}, 10, 1, obs).Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, nil)
	require.Error(t, err)

	assert.Nil(t, res.Orders, "no partial aggregate on failure")
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "no retry")
	assert.True(t, pkg.IsCode(err, pkg.ErrUpstreamCode))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Unauthorized", apiErr.Status)
	assert.Equal(t, "woocommerce_rest_cannot_view", apiErr.Code)
	assert.Equal(t, "API Error: 401 Unauthorized: Sorry, you cannot list resources.", apiErr.Error())
	assert.Equal(t, StateError, obs.finished)
}

func TestFetch_APIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestFetcher(pkg.DelayPacer{}, 10, 10, nil).Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "API Error: 503 Service Unavailable", apiErr.Error())
}

func TestFetch_MalformedBodyIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	_, err := newTestFetcher(pkg.DelayPacer{}, 10, 10, nil).Fetch(context.Background(), FetchRequest{Credentials: creds(srv.URL)}, nil)
	require.Error(t, err)
	assert.True(t, pkg.IsCode(err, pkg.ErrUpstreamCode))
}

func TestFetch_MissingCredentialsIssuesNoRequest(t *testing.T) {
	var requests int32
	srv := mockStore(t, []int{1}, &requests)
	defer srv.Close()

	f := newTestFetcher(pkg.DelayPacer{}, 10, 10, nil)
	for _, c := range []Credentials{
		{ConsumerKey: "ck", ConsumerSecret: "cs"},
		{SiteURL: srv.URL, ConsumerSecret: "cs"},
		{SiteURL: srv.URL, ConsumerKey: "ck", ConsumerSecret: "   "},
	} {
		_, err := f.Fetch(context.Background(), FetchRequest{Credentials: c}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, pkg.ErrMissingCredentials)
		assert.True(t, pkg.IsCode(err, pkg.ErrConfigurationCode))
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
}

func TestFetch_IncompleteCustomRangeIssuesNoRequest(t *testing.T) {
	var requests int32
	srv := mockStore(t, []int{1}, &requests)
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req := FetchRequest{
		Credentials: creds(srv.URL),
		Criteria:    filters.Criteria{DateMode: filters.DateModeCustom, Start: &start},
	}
	_, err := newTestFetcher(pkg.DelayPacer{}, 10, 10, nil).Fetch(context.Background(), req, nil)
	assert.ErrorIs(t, err, pkg.ErrIncompleteDateRange)
	assert.True(t, pkg.IsCode(err, pkg.ErrConfigurationCode))
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
}

func TestFetch_SendsDateBoundsAndSort(t *testing.T) {
	var query []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query = []string{q.Get("after"), q.Get("before"), q.Get("orderby"), q.Get("order"), q.Get("per_page"), q.Get("page")}
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	req := FetchRequest{
		Credentials: creds(srv.URL + "/"),
		Criteria:    filters.Criteria{DateMode: filters.DateModeCustom, Start: &start, End: &end},
	}
	_, err := newTestFetcher(pkg.DelayPacer{}, 10, 100, nil).Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01T00:00:00", "2024-02-01T00:00:00", "date", "desc", "100", "1"}, query)
}

func TestFetch_PresetSendsOnlyLowerBound(t *testing.T) {
	var after, before string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		after, before = r.URL.Query().Get("after"), r.URL.Query().Get("before")
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{
		Lister: NewClient(zap.NewNop(), nil, ""),
		Pacer:  pkg.DelayPacer{},
		Now:    func() time.Time { return time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC) },
	})
	req := FetchRequest{Credentials: creds(srv.URL), Criteria: filters.Criteria{DateMode: filters.DateModePreset, MonthsAgo: 3}}
	_, err := f.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T09:30:00", after)
	assert.Empty(t, before)
}

func TestFetch_ContextCancelledDuringPause(t *testing.T) {
	var requests int32
	srv := mockStore(t, []int{-1}, &requests)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := newTestFetcher(pkg.DelayPacer{Delay: time.Hour}, 100, 10, nil)
	res, err := f.Fetch(ctx, FetchRequest{Credentials: creds(srv.URL)}, func(Progress) { cancel() })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Orders)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestClient_InvalidSiteURL(t *testing.T) {
	c := NewClient(zap.NewNop(), nil, "wp-json/wc/v3/orders")
	_, err := c.ListOrders(context.Background(), Credentials{SiteURL: "shop.example.com", ConsumerKey: "ck", ConsumerSecret: "cs"}, PageQuery{Page: 1, PerPage: 1})
	require.Error(t, err)
	assert.True(t, pkg.IsCode(err, pkg.ErrConfigurationCode))
}

func TestClient_ReadsTotalHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shop/wp-json/wc/v3/orders", r.URL.Path)
		w.Header().Set("X-WP-Total", "250")
		w.Header().Set("X-WP-TotalPages", "3")
		_, _ = fmt.Fprint(w, `[{"id": 9, "total": "5.00"}]`)
	}))
	defer srv.Close()

	page, err := NewClient(zap.NewNop(), nil, "").ListOrders(context.Background(), creds(srv.URL+"/shop"), PageQuery{Page: 1, PerPage: 100})
	require.NoError(t, err)
	assert.Equal(t, 250, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, int64(9), page.Orders[0].ID)
}
