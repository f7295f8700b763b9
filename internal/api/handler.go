// Package api exposes the order publisher over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/publisher"
)

// OrderPublisher publishes validated order requests.
type OrderPublisher interface {
	Publish(ctx context.Context, req *order.Request) (*publisher.Result, error)
}

// OrderHandler serves the order endpoints.
type OrderHandler struct {
	publisher OrderPublisher
	logger    *zap.Logger
}

func NewOrderHandler(pub OrderPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{publisher: pub, logger: logger}
}

// HealthCheck reports liveness only.
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateOrder publishes an order and answers once the broker confirmed delivery.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req order.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	res, err := h.publisher.Publish(c.Request.Context(), &req)
	if err != nil {
		var verr *order.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"detail": verr.Error()})
		case errors.Is(err, publisher.ErrBrokerUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": publisher.ErrBrokerUnavailable.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "request canceled"})
		default:
			h.logger.Error("Failed to publish order", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, res)
}
