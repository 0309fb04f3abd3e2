// Package woocommerce reads paginated order lists from a WooCommerce REST API.
package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/models"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultOrdersPath = "/wp-json/wc/v3/orders"

	paramConsumerKey    = "consumer_key"
	paramConsumerSecret = "consumer_secret"

	headerTotal      = "X-WP-Total"
	headerTotalPages = "X-WP-TotalPages"

	queryTimeLayout = "2006-01-02T15:04:05"
	maxErrorBody    = 64 << 10
)

// Credentials identify the store and authenticate as static query params.
type Credentials struct {
	SiteURL        string `json:"siteUrl"`
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`
}

// Validate checks presence only.
func (c Credentials) Validate() error {
	if utils.IsEmpty(c.SiteURL) || utils.IsEmpty(c.ConsumerKey) || utils.IsEmpty(c.ConsumerSecret) {
		return pkg.NewAppError(pkg.ErrConfigurationCode, "Please fill in all API credentials", pkg.ErrMissingCredentials)
	}
	return nil
}

// PageQuery selects one page of the orders list.
type PageQuery struct {
	Page    int
	PerPage int
	After   *time.Time
	Before  *time.Time
	OrderBy string
	Order   string
}

// Page is one decoded page. Total and TotalPages come from response headers and are -1 when absent.
type Page struct {
	Orders     []models.Order
	Total      int
	TotalPages int
}

// APIError is a non-2xx response from the orders endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Code       string // server error code, e.g. woocommerce_rest_cannot_view
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API Error: %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("API Error: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// OrderLister lists one page of orders.
type OrderLister interface {
	ListOrders(ctx context.Context, creds Credentials, query PageQuery) (Page, error)
}

type Client struct {
	httpClient *http.Client
	ordersPath string
	logger     *zap.Logger
}

// NewClient returns a Client. An empty ordersPath uses DefaultOrdersPath.
func NewClient(logger *zap.Logger, httpClient *http.Client, ordersPath string) *Client {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient()
	}
	if utils.IsEmpty(ordersPath) {
		ordersPath = DefaultOrdersPath
	}
	return &Client{httpClient: httpClient, ordersPath: "/" + strings.TrimLeft(ordersPath, "/"), logger: logger}
}

func (c *Client) ListOrders(ctx context.Context, creds Credentials, query PageQuery) (Page, error) {
	endpoint, err := c.pageURL(creds, query)
	if err != nil {
		return Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("requesting_orders_page",
		zap.String("url", utils.MaskQuery(endpoint, paramConsumerKey, paramConsumerSecret)),
		zap.Int("page", query.Page))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("request orders page %d: %w", query.Page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, decodeAPIError(resp)
	}

	var orders []models.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return Page{}, fmt.Errorf("decode orders page %d: %w", query.Page, err)
	}
	return Page{
		Orders:     orders,
		Total:      headerInt(resp.Header, headerTotal),
		TotalPages: headerInt(resp.Header, headerTotalPages),
	}, nil
}

func (c *Client) pageURL(creds Credentials, query PageQuery) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(creds.SiteURL), "/") + c.ordersPath)
	if err != nil {
		return "", pkg.NewAppError(pkg.ErrConfigurationCode, "invalid site url", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", pkg.NewAppError(pkg.ErrConfigurationCode, "invalid site url", fmt.Errorf("%q is not absolute", creds.SiteURL))
	}

	q := u.Query()
	q.Set(paramConsumerKey, creds.ConsumerKey)
	q.Set(paramConsumerSecret, creds.ConsumerSecret)
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("per_page", strconv.Itoa(query.PerPage))
	if query.OrderBy != "" {
		q.Set("orderby", query.OrderBy)
	}
	if query.Order != "" {
		q.Set("order", query.Order)
	}
	if query.After != nil {
		q.Set("after", query.After.Format(queryTimeLayout))
	}
	if query.Before != nil {
		q.Set("before", query.Before.Format(queryTimeLayout))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}

func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return -1
	}
	return n
}
