package services

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/shopverse/checkout-service/models"
	"github.com/shopverse/checkout-service/repository"
)

// OrderService serves the read paths and the administrative status
// progression for persisted orders.
type OrderService struct {
	orders repository.OrderRepository
	logger *zap.Logger
}

func NewOrderService(orders repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		logger: logger,
	}
}

// GetBuyerOrders returns the authenticated buyer's orders newest-first.
func (s *OrderService) GetBuyerOrders(ctx context.Context, buyerID string) ([]models.PopulatedOrder, *ServiceError) {
	buyer, err := primitive.ObjectIDFromHex(buyerID)
	if err != nil {
		return nil, &ServiceError{StatusCode: http.StatusUnauthorized, Message: "Invalid buyer identity"}
	}

	orders, err := s.orders.FindByBuyer(ctx, buyer)
	if err != nil {
		s.logger.Error("Failed to fetch buyer orders", zap.String("buyer", buyerID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch orders"}
	}
	return orders, nil
}

// GetAllOrders returns every order newest-first. Admin only; the role gate
// lives in the middleware.
func (s *OrderService) GetAllOrders(ctx context.Context) ([]models.PopulatedOrder, *ServiceError) {
	orders, err := s.orders.FindAll(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch all orders", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to fetch orders"}
	}
	return orders, nil
}

// UpdateOrderStatus overwrites an order's status. The value must be one of
// the enumerated statuses; transitions between them are unrestricted.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, status string) (*models.Order, *ServiceError) {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid order ID format"}
	}

	newStatus := models.OrderStatus(status)
	if !newStatus.Valid() {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid order status"}
	}

	order, err := s.orders.UpdateStatus(ctx, id, newStatus)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Order not found", Code: CodeOrderNotFound}
	}
	if err != nil {
		s.logger.Error("Failed to update order status",
			zap.String("order_id", orderID), zap.String("status", status), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update order status"}
	}
	return order, nil
}
