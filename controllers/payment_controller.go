package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopverse/checkout-service/gateway"
	"github.com/shopverse/checkout-service/middleware"
	"github.com/shopverse/checkout-service/services"
)

type PaymentController struct {
	Checkout *services.CheckoutService
	Gateway  gateway.Adapter
	Logger   *zap.Logger
}

func NewPaymentController(checkout *services.CheckoutService, gw gateway.Adapter, logger *zap.Logger) *PaymentController {
	return &PaymentController{
		Checkout: checkout,
		Gateway:  gw,
		Logger:   logger,
	}
}

// BraintreeToken returns a fresh client token for the payment widget.
func (pc *PaymentController) BraintreeToken(c *gin.Context) {
	token, err := pc.Gateway.FetchAuthorizationToken(c.Request.Context())
	if err != nil {
		pc.Logger.Warn("Failed to fetch authorization token", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment gateway unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clientToken": token})
}

// BraintreePayment runs one checkout attempt for the authenticated buyer.
func (pc *PaymentController) BraintreePayment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	idemKey := c.GetHeader("X-Idempotency-Key")

	result, serviceErr := pc.Checkout.Checkout(c.Request.Context(), userID, idemKey, &req)
	if serviceErr != nil {
		body := gin.H{"error": serviceErr.Message}
		if serviceErr.Code != "" {
			body["code"] = serviceErr.Code
		}
		c.JSON(serviceErr.StatusCode, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "order": result.OrderID})
}
