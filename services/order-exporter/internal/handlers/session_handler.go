package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/common"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/export"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/filters"
	middleware "github.com/nimeshabuddhika/woo-order-exporter/pkg/middlewares"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/services"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/views"
	"go.uber.org/zap"
)

type SessionHandler struct {
	logger *zap.Logger
	store  *services.SessionStore
	// background fetches run under this context so they outlive the request
	fetchCtx context.Context
}

func NewSessionHandler(fetchCtx context.Context, logger *zap.Logger, store *services.SessionStore) *SessionHandler {
	return &SessionHandler{logger: logger, store: store, fetchCtx: fetchCtx}
}

// RegisterRoutes registers session routes on the provided group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.DeleteSession)
	r.POST("/sessions/:id/fetch", h.Refetch)
	r.GET("/sessions/:id/orders", h.ListOrders)
	r.GET("/sessions/:id/orders/:orderId", h.GetOrder)
	r.GET("/sessions/:id/export.json", h.exportAs(export.FormatJSON))
	r.GET("/sessions/:id/export.xlsx", h.exportAs(export.FormatXLSX))
}

// CreateSession creates a session and fetches into it. With ?wait=true the response
// carries the finished status, otherwise 202 and the fetch continues in the background.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	req, ok := h.bindFetchRequest(c)
	if !ok {
		return
	}
	s := h.store.Create()
	h.startFetch(c, s, req)
}

func (h *SessionHandler) Refetch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	req, ok := h.bindFetchRequest(c)
	if !ok {
		return
	}
	h.startFetch(c, s, req)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.ok(c, http.StatusOK, s.Status())
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListOrders returns the aggregate narrowed by the filter query params.
func (h *SessionHandler) ListOrders(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var raw filters.Raw
	if err := c.ShouldBindQuery(&raw); err != nil {
		h.fail(c, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid filter parameters", err))
		return
	}
	h.ok(c, http.StatusOK, s.Filtered(raw.Parse()))
}

func (h *SessionHandler) GetOrder(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		h.fail(c, pkg.NewAppError(pkg.ErrInvalidInputCode, "order id must be numeric", err))
		return
	}
	order, err := s.Order(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, order)
}

func (h *SessionHandler) exportAs(format export.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := h.session(c)
		if !ok {
			return
		}
		var q views.ExportQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			h.fail(c, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid export parameters", err))
			return
		}

		// rendered fully before any header is written so an empty set still gets a JSON error
		var buf bytes.Buffer
		if err := s.Export(&buf, format, services.ParseScope(q.Scope), q.Raw.Parse()); err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName()))
		c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}

func (h *SessionHandler) startFetch(c *gin.Context, s *services.Session, req woocommerce.FetchRequest) {
	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if wait {
		status, err := s.Fetch(c.Request.Context(), req)
		if err != nil {
			h.fail(c, err)
			return
		}
		h.ok(c, http.StatusOK, status)
		return
	}
	if err := h.store.FetchAsync(h.fetchCtx, s, req); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusAccepted, s.Status())
}

// bindFetchRequest decodes the body and rejects configuration errors before any session work.
func (h *SessionHandler) bindFetchRequest(c *gin.Context) (woocommerce.FetchRequest, bool) {
	var body views.FetchRequest
	// an empty body is a request without credentials, reported by Bounds below
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid request body", err))
		return woocommerce.FetchRequest{}, false
	}
	req := body.ToFetchRequest()
	if _, _, err := req.Bounds(time.Now()); err != nil {
		h.fail(c, err)
		return woocommerce.FetchRequest{}, false
	}
	return req, true
}

func (h *SessionHandler) session(c *gin.Context) (*services.Session, bool) {
	s, err := h.store.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) ok(c *gin.Context, status int, data any) {
	c.JSON(status, common.APIResponse{TraceID: middleware.GetTraceID(c), Data: data})
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	resp := pkg.ToErrorResponse(h.logger, middleware.GetTraceID(c), err)
	c.AbortWithStatusJSON(resp.Status, resp)
}
