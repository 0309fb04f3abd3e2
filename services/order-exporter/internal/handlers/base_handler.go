package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/services"
	"go.uber.org/zap"
)

type BaseHandler struct {
	logger *zap.Logger
	store  *services.SessionStore
}

func NewBaseHandler(logger *zap.Logger, store *services.SessionStore) *BaseHandler {
	return &BaseHandler{logger: logger, store: store}
}

func (b *BaseHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", b.GetHealth)
}

// GetHealth reports liveness and the number of sessions held in memory.
func (b *BaseHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": b.store.Len(),
	})
}
