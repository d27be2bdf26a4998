package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/shopverse/checkout-service/gateway"
	"github.com/shopverse/checkout-service/models"
	"github.com/shopverse/checkout-service/repository"
)

// persistTimeout bounds the order write after a successful authorization.
// The write runs on a context detached from the client connection: money has
// already moved, so a client disconnect must not abort persistence.
const persistTimeout = 10 * time.Second

// IdempotencyStore tracks per-attempt checkout keys. Optional; the unique
// transaction-id index in the order store remains the durable backstop.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Result(ctx context.Context, key string) (string, error)
	StoreResult(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

// EventPublisher emits order lifecycle events after durable writes.
// Optional; publish failures are logged, never surfaced to the buyer.
type EventPublisher interface {
	PublishOrderPlaced(evt models.OrderPlacedEvent) error
}

type CheckoutRequest struct {
	Nonce string            `json:"nonce" binding:"required"`
	Cart  []models.CartLine `json:"cart" binding:"required"`
}

type CheckoutResult struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Replayed      bool   `json:"replayed,omitempty"`
}

// CheckoutService coordinates cart validation, charge authorization and
// order persistence as one synchronous sequence. The order write is never
// issued before the gateway returns an authorization.
type CheckoutService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	gateway  gateway.Adapter
	idem     IdempotencyStore // may be nil
	events   EventPublisher   // may be nil
	logger   *zap.Logger
}

func NewCheckoutService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	gw gateway.Adapter,
	idem IdempotencyStore,
	events EventPublisher,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		products: products,
		orders:   orders,
		gateway:  gw,
		idem:     idem,
		events:   events,
		logger:   logger,
	}
}

// Checkout runs one checkout attempt for the authenticated buyer. idemKey is
// the client-supplied per-attempt key; empty disables the reservation path.
func (s *CheckoutService) Checkout(ctx context.Context, buyerID, idemKey string, req *CheckoutRequest) (*CheckoutResult, *ServiceError) {
	buyer, err := primitive.ObjectIDFromHex(buyerID)
	if err != nil {
		return nil, &ServiceError{StatusCode: http.StatusUnauthorized, Message: "Invalid buyer identity"}
	}
	if len(req.Cart) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Cart is empty"}
	}
	for i := range req.Cart {
		if req.Cart[i].Quantity == 0 {
			req.Cart[i].Quantity = 1
		}
		if req.Cart[i].Quantity < 0 {
			return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid quantity"}
		}
	}

	reserved := false
	if idemKey != "" && s.idem != nil {
		prior, ierr := s.idem.Result(ctx, idemKey)
		switch {
		case ierr != nil:
			s.logger.Warn("Idempotency lookup failed, continuing without reservation", zap.Error(ierr))
		case prior != "":
			return &CheckoutResult{OrderID: prior, Replayed: true}, nil
		default:
			ok, rerr := s.idem.Reserve(ctx, idemKey)
			if rerr != nil {
				s.logger.Warn("Idempotency reservation failed, continuing without reservation", zap.Error(rerr))
			} else if !ok {
				return nil, &ServiceError{
					StatusCode: http.StatusConflict,
					Message:    "A checkout with this idempotency key is already in progress",
					Code:       CodeCheckoutInProgress,
				}
			} else {
				reserved = true
			}
		}
	}

	// Validating: load current product records before any charge.
	ids := make([]primitive.ObjectID, 0, len(req.Cart))
	for _, line := range req.Cart {
		ids = append(ids, line.ProductID)
	}

	products, perr := s.products.FindByIDs(ctx, ids)
	if perr != nil {
		s.release(ctx, reserved, idemKey)
		s.logger.Error("Cart validation failed", zap.Error(perr))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to validate cart"}
	}

	byID := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Computing: sum over freshly loaded prices only. A client-supplied
	// total is never read.
	var totalCents int64
	orderProducts := make([]primitive.ObjectID, 0, len(req.Cart))
	for _, line := range req.Cart {
		p, ok := byID[line.ProductID]
		if !ok {
			s.release(ctx, reserved, idemKey)
			return nil, &ServiceError{
				StatusCode: http.StatusNotFound,
				Message:    "A product in your cart is no longer available",
				Code:       CodeProductNotFound,
			}
		}
		totalCents += models.LineTotalCents(p.Price, line.Quantity)
		orderProducts = append(orderProducts, p.ID)
	}
	if totalCents <= 0 {
		s.release(ctx, reserved, idemKey)
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Order total must be positive"}
	}

	// Authorizing: exactly one sale submission per attempt.
	res := s.gateway.AuthorizeSale(ctx, req.Nonce, totalCents)
	switch res.Outcome {
	case gateway.OutcomeDeclined:
		s.release(ctx, reserved, idemKey)
		return nil, &ServiceError{
			StatusCode: http.StatusPaymentRequired,
			Message:    "Payment declined: " + res.Reason,
			Code:       CodePaymentDeclined,
		}
	case gateway.OutcomeGatewayError:
		// Outcome unknown: funds may have been captured. The reservation is
		// kept so a same-key retry cannot submit a second sale.
		s.logger.Warn("Gateway error during sale submission",
			zap.String("buyer", buyerID),
			zap.Int64("amount_cents", totalCents),
			zap.String("detail", res.Reason),
		)
		return nil, &ServiceError{
			StatusCode: http.StatusBadGateway,
			Message:    "Payment gateway error, please try again later",
			Code:       CodeGatewayError,
		}
	}

	// Persisting: detached from client cancellation.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	order := &models.Order{
		Products: orderProducts,
		Payment: models.PaymentRecord{
			Success:       true,
			TransactionID: res.TransactionID,
			AmountCents:   totalCents,
			Currency:      "USD",
			GatewayStatus: res.GatewayStatus,
		},
		Buyer:  buyer,
		Status: models.StatusNotProcessed,
	}

	id, cerr := s.orders.Create(pctx, order)
	if errors.Is(cerr, repository.ErrDuplicateTransaction) {
		// A concurrent retry with the same transaction already recorded the
		// order. Resolve its id and answer success.
		if existing, ferr := s.orders.FindByTransactionID(pctx, res.TransactionID); ferr == nil {
			id = existing.ID
		} else {
			s.logger.Warn("Duplicate transaction but existing order lookup failed",
				zap.String("transaction_id", res.TransactionID), zap.Error(ferr))
		}
		s.storeResult(pctx, reserved, idemKey, id.Hex())
		return &CheckoutResult{
			OrderID:       id.Hex(),
			TransactionID: res.TransactionID,
			AmountCents:   totalCents,
			Replayed:      true,
		}, nil
	}
	if cerr != nil {
		s.flagCapturedNotRecorded(ctx, buyer, orderProducts, res, totalCents, cerr)
		// The reservation stays held: a same-key retry would charge again
		// for a payment that already captured.
		return nil, &ServiceError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Checkout failed, please contact support",
			Code:       CodeCapturedNotRecorded,
		}
	}

	s.storeResult(pctx, reserved, idemKey, id.Hex())
	s.publishOrderPlaced(id, buyerID, res.TransactionID, totalCents, orderProducts)

	return &CheckoutResult{
		OrderID:       id.Hex(),
		TransactionID: res.TransactionID,
		AmountCents:   totalCents,
	}, nil
}

// flagCapturedNotRecorded records the audit entry for a charge that captured
// at the gateway while the order insert failed, and logs at a severity that
// triggers operator follow-up. The zap Error with the full payload is the
// backstop if the audit write itself fails.
func (s *CheckoutService) flagCapturedNotRecorded(
	ctx context.Context,
	buyer primitive.ObjectID,
	products []primitive.ObjectID,
	res gateway.SaleResult,
	totalCents int64,
	cause error,
) {
	rec := &models.ReconciliationRecord{
		TransactionID: res.TransactionID,
		Buyer:         buyer,
		Products:      products,
		AmountCents:   totalCents,
		Reason:        cause.Error(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if rerr := s.orders.RecordReconciliation(rctx, rec); rerr != nil {
		s.logger.Error("Reconciliation record write failed",
			zap.String("transaction_id", res.TransactionID), zap.Error(rerr))
	}

	s.logger.Error("Payment captured but order not recorded",
		zap.String("transaction_id", res.TransactionID),
		zap.String("buyer", buyer.Hex()),
		zap.Int64("amount_cents", totalCents),
		zap.Any("products", products),
		zap.Error(cause),
	)
}

func (s *CheckoutService) release(ctx context.Context, reserved bool, key string) {
	if !reserved || s.idem == nil {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		s.logger.Warn("Failed to release idempotency reservation",
			zap.String("key", key), zap.Error(err))
	}
}

func (s *CheckoutService) storeResult(ctx context.Context, reserved bool, key, orderID string) {
	if !reserved || s.idem == nil {
		return
	}
	if err := s.idem.StoreResult(ctx, key, orderID); err != nil {
		s.logger.Warn("Failed to record idempotency result",
			zap.String("key", key), zap.Error(err))
	}
}

func (s *CheckoutService) publishOrderPlaced(orderID primitive.ObjectID, buyerID, transactionID string, totalCents int64, products []primitive.ObjectID) {
	if s.events == nil {
		return
	}

	productIDs := make([]string, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.Hex())
	}

	evt := models.OrderPlacedEvent{
		Type:          "order_placed",
		OrderID:       orderID.Hex(),
		BuyerID:       buyerID,
		TransactionID: transactionID,
		AmountCents:   totalCents,
		Products:      productIDs,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.events.PublishOrderPlaced(evt); err != nil {
		s.logger.Warn("Failed to publish order placed event",
			zap.String("order_id", evt.OrderID), zap.Error(err))
	}
}
