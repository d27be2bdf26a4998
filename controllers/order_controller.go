package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopverse/checkout-service/middleware"
	"github.com/shopverse/checkout-service/services"
)

type OrderController struct {
	orderService *services.OrderService
	logger       *zap.Logger
}

func NewOrderController(orderService *services.OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{
		orderService: orderService,
		logger:       logger,
	}
}

// GetOrders returns orders for the authenticated buyer
func (oc *OrderController) GetOrders(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orders, serviceErr := oc.orderService.GetBuyerOrders(c.Request.Context(), userID)
	if serviceErr != nil {
		c.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// GetAllOrders returns orders for all buyers (admin only)
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	orders, serviceErr := oc.orderService.GetAllOrders(c.Request.Context())
	if serviceErr != nil {
		c.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus progresses an order's status (admin only)
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	orderID := c.Param("orderId")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, serviceErr := oc.orderService.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if serviceErr != nil {
		c.JSON(serviceErr.StatusCode, gin.H{"error": serviceErr.Message})
		return
	}

	c.JSON(http.StatusOK, order)
}
