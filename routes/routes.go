package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/shopverse/checkout-service/controllers"
	"github.com/shopverse/checkout-service/middleware"
)

func RegisterRoutes(r *gin.Engine, pc *controllers.PaymentController, oc *controllers.OrderController, jwtSecret []byte) {
	signIn := middleware.RequireSignIn(jwtSecret)

	product := r.Group("/api/v1/product")
	product.Use(signIn)
	product.GET("/braintree/token", pc.BraintreeToken)
	product.POST("/braintree/payment",
		middleware.RateLimitMiddleware(rate.Every(time.Minute/30), 10),
		pc.BraintreePayment,
	)

	auth := r.Group("/api/v1/auth")
	auth.Use(signIn)
	auth.GET("/orders", oc.GetOrders)
	auth.GET("/all-orders", middleware.RequireAdmin(), oc.GetAllOrders)
	auth.PUT("/order-status/:orderId", middleware.RequireAdmin(), oc.UpdateOrderStatus)
}
