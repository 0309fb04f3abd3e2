package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/export"
	middleware "github.com/nimeshabuddhika/woo-order-exporter/pkg/middlewares"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticFetcher struct {
	orders []models.Order
	last   woocommerce.FetchRequest
}

func (f *staticFetcher) Fetch(_ context.Context, req woocommerce.FetchRequest, progress woocommerce.ProgressFunc) (woocommerce.FetchResult, error) {
	f.last = req
	progress(woocommerce.Progress{Page: 1, Fetched: len(f.orders)})
	return woocommerce.FetchResult{Orders: f.orders, Pages: 1, State: woocommerce.StateDone}, nil
}

func fixtureOrders() []models.Order {
	created := models.Timestamp{Time: time.Now().UTC().AddDate(0, 0, -3)}
	return []models.Order{
		{ID: 11, Status: "completed", Total: "15.00", DateCreated: created,
			Billing:   models.Billing{FirstName: "Ann", City: "Seattle"},
			LineItems: []models.LineItem{{ProductID: 1, Name: "Tea", Quantity: 3, Total: "15.00"}}},
		{ID: 12, Status: "processing", Total: "99.00", DateCreated: created,
			Billing:   models.Billing{FirstName: "Bob", City: "Portland"},
			LineItems: []models.LineItem{{ProductID: 2, Name: "Kettle", Quantity: 1, Total: "99.00"}}},
	}
}

type envelope struct {
	TraceID string          `json:"traceId"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *services.SessionStore, *staticFetcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fetcher := &staticFetcher{orders: fixtureOrders()}
	store := services.NewSessionStore(services.SessionStoreConfig{Fetcher: fetcher, Logger: zap.NewNop()})

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	NewSessionHandler(context.Background(), zap.NewNop(), store).RegisterRoutes(api)
	NewBaseHandler(zap.NewNop(), store).RegisterRoutes(r)
	return r, store, fetcher
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validBody = `{"siteUrl":"https://shop.test","consumerKey":"ck","consumerSecret":"cs","dateMode":"preset","monthsAgo":1}`

func createSession(t *testing.T, r http.Handler) services.Status {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/sessions?wait=true", validBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var status services.Status
	require.NoError(t, json.Unmarshal(env.Data, &status))
	return status
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkg.ErrorResponse {
	t.Helper()
	var resp pkg.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateSession_WaitReturnsSummary(t *testing.T) {
	r, _, fetcher := setup(t)
	status := createSession(t, r)

	assert.NotEmpty(t, status.ID)
	assert.Equal(t, woocommerce.StateDone, status.State)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, "ck", fetcher.last.Credentials.ConsumerKey)
	assert.Equal(t, 1, fetcher.last.Criteria.MonthsAgo)
}

func TestCreateSession_AsyncAccepted(t *testing.T) {
	r, store, _ := setup(t)
	w := do(r, http.MethodPost, "/api/v1/sessions", validBody)
	require.Equal(t, http.StatusAccepted, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, w.Header().Get(pkg.HeaderTraceId), env.TraceID)
	var status services.Status
	require.NoError(t, json.Unmarshal(env.Data, &status))

	store.Wait()
	w = do(r, http.MethodGet, "/api/v1/sessions/"+status.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, woocommerce.StateDone, status.State)
}

func TestCreateSession_ConfigurationErrors(t *testing.T) {
	r, store, _ := setup(t)

	w := do(r, http.MethodPost, "/api/v1/sessions?wait=true", `{"siteUrl":"https://shop.test","consumerKey":"ck"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, pkg.ErrConfigurationCode.Code, resp.Code)
	assert.Equal(t, "Please fill in all API credentials", resp.Message)

	w = do(r, http.MethodPost, "/api/v1/sessions?wait=true",
		`{"siteUrl":"https://shop.test","consumerKey":"ck","consumerSecret":"cs","dateMode":"custom","startDate":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please select both start and end dates", decodeError(t, w).Message)

	w = do(r, http.MethodPost, "/api/v1/sessions?wait=true", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp = decodeError(t, w)
	assert.Equal(t, pkg.ErrConfigurationCode.Code, resp.Code)
	assert.Equal(t, "Please fill in all API credentials", resp.Message)

	w = do(r, http.MethodPost, "/api/v1/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, pkg.ErrInvalidInputCode.Code, decodeError(t, w).Code)

	assert.Zero(t, store.Len())
}

func TestListOrders_AppliesFilters(t *testing.T) {
	r, _, _ := setup(t)
	id := createSession(t, r).ID

	w := do(r, http.MethodGet, "/api/v1/sessions/"+id+"/orders?city=sEaT&amountMode=less&amountValue=20", "")
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var res services.FilterResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, int64(11), res.Orders[0].ID)

	// malformed input degrades to pass-all
	w = do(r, http.MethodGet, "/api/v1/sessions/"+id+"/orders?amountMode=greater&amountValue=lots&monthsAgo=x", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Filtered)
}

func TestGetOrder(t *testing.T) {
	r, _, _ := setup(t)
	id := createSession(t, r).ID

	w := do(r, http.MethodGet, "/api/v1/sessions/"+id+"/orders/12", "")
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "Kettle", order.LineItems[0].Name)

	w = do(r, http.MethodGet, "/api/v1/sessions/"+id+"/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/sessions/"+id+"/orders/404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport_JSONAttachment(t *testing.T) {
	r, _, _ := setup(t)
	id := createSession(t, r).ID

	w := do(r, http.MethodGet, "/api/v1/sessions/"+id+"/export.json?status=completed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="woocommerce_orders.json"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, export.JSONContentType, w.Header().Get("Content-Type"))

	var records []export.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Tea (3×)", records[0].Cart)

	w = do(r, http.MethodGet, "/api/v1/sessions/"+id+"/export.json?status=completed&scope=all", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestExport_XLSXAndEmpty(t *testing.T) {
	r, _, _ := setup(t)
	id := createSession(t, r).ID

	w := do(r, http.MethodGet, "/api/v1/sessions/"+id+"/export.xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.XLSXContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(r, http.MethodGet, "/api/v1/sessions/"+id+"/export.xlsx?status=refunded", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, pkg.ErrExportEmptyCode.Code, resp.Code)
	assert.Equal(t, "No orders to export", resp.Message)
}

func TestSessionLifecycle(t *testing.T) {
	r, store, _ := setup(t)
	id := createSession(t, r).ID

	w := do(r, http.MethodPost, "/api/v1/sessions/"+id+"/fetch?wait=true", validBody)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, w.Body.String())

	w = do(r, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, store.Len())

	w = do(r, http.MethodGet, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, pkg.ErrSessionNotFoundCode.Code, decodeError(t, w).Code)
}
