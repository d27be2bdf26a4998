package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/shopverse/checkout-service/gateway"
	"github.com/shopverse/checkout-service/models"
	"github.com/shopverse/checkout-service/repository"
)

type fakeProductRepo struct {
	products map[primitive.ObjectID]models.Product
	err      error
}

func (f *fakeProductRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeOrderRepo struct {
	created         []*models.Order
	createErr       error
	duplicate       bool
	existing        *models.Order
	reconciliations []*models.ReconciliationRecord
}

func (f *fakeOrderRepo) Create(ctx context.Context, order *models.Order) (primitive.ObjectID, error) {
	if f.duplicate {
		return primitive.NilObjectID, repository.ErrDuplicateTransaction
	}
	if f.createErr != nil {
		return primitive.NilObjectID, f.createErr
	}
	order.ID = primitive.NewObjectID()
	f.created = append(f.created, order)
	return order.ID, nil
}

func (f *fakeOrderRepo) FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.PopulatedOrder, error) {
	return nil, nil
}

func (f *fakeOrderRepo) FindAll(ctx context.Context) ([]models.PopulatedOrder, error) {
	return nil, nil
}

func (f *fakeOrderRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	if f.existing != nil && f.existing.Payment.TransactionID == transactionID {
		return f.existing, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, orderID primitive.ObjectID, status models.OrderStatus) (*models.Order, error) {
	return nil, repository.ErrOrderNotFound
}

func (f *fakeOrderRepo) RecordReconciliation(ctx context.Context, rec *models.ReconciliationRecord) error {
	f.reconciliations = append(f.reconciliations, rec)
	return nil
}

type fakeGateway struct {
	result     gateway.SaleResult
	calls      int
	lastNonce  string
	lastAmount int64
}

func (f *fakeGateway) FetchAuthorizationToken(ctx context.Context) (string, error) {
	return "fake-client-token", nil
}

func (f *fakeGateway) AuthorizeSale(ctx context.Context, nonce string, amountCents int64) gateway.SaleResult {
	f.calls++
	f.lastNonce = nonce
	f.lastAmount = amountCents
	return f.result
}

type fakeIdemStore struct {
	values map[string]string
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{values: make(map[string]string)}
}

func (f *fakeIdemStore) Reserve(ctx context.Context, key string) (bool, error) {
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = ""
	return true, nil
}

func (f *fakeIdemStore) Result(ctx context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeIdemStore) StoreResult(ctx context.Context, key, orderID string) error {
	f.values[key] = orderID
	return nil
}

func (f *fakeIdemStore) Release(ctx context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func twoProductCatalog(t *testing.T) (*fakeProductRepo, []models.CartLine) {
	t.Helper()
	p1 := models.Product{ID: primitive.NewObjectID(), Name: "Textbook", Price: 79.99}
	p2 := models.Product{ID: primitive.NewObjectID(), Name: "Notebook", Price: 9.99}
	repo := &fakeProductRepo{products: map[primitive.ObjectID]models.Product{
		p1.ID: p1,
		p2.ID: p2,
	}}
	cart := []models.CartLine{
		{ProductID: p1.ID, Quantity: 1},
		{ProductID: p2.ID, Quantity: 1},
	}
	return repo, cart
}

func newCheckoutService(products *fakeProductRepo, orders *fakeOrderRepo, gw *fakeGateway, idem IdempotencyStore) *CheckoutService {
	return NewCheckoutService(products, orders, gw, idem, nil, zap.NewNop())
}

func TestCheckout_ComputesTotalFromStoredPrices(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn123"}}
	svc := newCheckoutService(products, orders, gw, nil)

	buyer := primitive.NewObjectID().Hex()
	_, serviceErr := svc.Checkout(context.Background(), buyer, "", &CheckoutRequest{Nonce: "nonce-1", Cart: cart})

	require.Nil(t, serviceErr)
	assert.Equal(t, int64(8998), gw.lastAmount, "79.99 + 9.99 in cents")
	assert.Equal(t, "nonce-1", gw.lastNonce)
}

func TestCheckout_QuantityMultipliesLineTotal(t *testing.T) {
	p := models.Product{ID: primitive.NewObjectID(), Name: "Notebook", Price: 9.99}
	products := &fakeProductRepo{products: map[primitive.ObjectID]models.Product{p.ID: p}}
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn1"}}
	svc := newCheckoutService(products, orders, gw, nil)

	_, serviceErr := svc.Checkout(context.Background(), primitive.NewObjectID().Hex(), "", &CheckoutRequest{
		Nonce: "n",
		Cart:  []models.CartLine{{ProductID: p.ID, Quantity: 3}},
	})

	require.Nil(t, serviceErr)
	assert.Equal(t, int64(2997), gw.lastAmount)
}

func TestCheckout_Authorized_CreatesExactlyOneOrder(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn123"}}
	svc := newCheckoutService(products, orders, gw, nil)

	buyer := primitive.NewObjectID()
	result, serviceErr := svc.Checkout(context.Background(), buyer.Hex(), "", &CheckoutRequest{Nonce: "n", Cart: cart})

	require.Nil(t, serviceErr)
	require.Len(t, orders.created, 1)

	order := orders.created[0]
	assert.True(t, order.Payment.Success)
	assert.Equal(t, "txn123", order.Payment.TransactionID)
	assert.Equal(t, int64(8998), order.Payment.AmountCents)
	assert.Len(t, order.Products, len(cart))
	assert.Equal(t, buyer, order.Buyer)
	assert.Equal(t, models.StatusNotProcessed, order.Status)
	assert.Equal(t, order.ID.Hex(), result.OrderID)
	assert.Equal(t, 1, gw.calls)
}

func TestCheckout_Declined_NoOrderCreated(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeDeclined, Reason: "Insufficient Funds"}}
	svc := newCheckoutService(products, orders, gw, nil)

	_, serviceErr := svc.Checkout(context.Background(), primitive.NewObjectID().Hex(), "", &CheckoutRequest{Nonce: "n", Cart: cart})

	require.NotNil(t, serviceErr)
	assert.Equal(t, http.StatusPaymentRequired, serviceErr.StatusCode)
	assert.Equal(t, CodePaymentDeclined, serviceErr.Code)
	assert.Contains(t, serviceErr.Message, "Insufficient Funds")
	assert.Empty(t, orders.created)
}

func TestCheckout_MissingProduct_AbortsBeforeGateway(t *testing.T) {
	products, cart := twoProductCatalog(t)
	cart = append(cart, models.CartLine{ProductID: primitive.NewObjectID(), Quantity: 1})
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn"}}
	svc := newCheckoutService(products, orders, gw, nil)

	_, serviceErr := svc.Checkout(context.Background(), primitive.NewObjectID().Hex(), "", &CheckoutRequest{Nonce: "n", Cart: cart})

	require.NotNil(t, serviceErr)
	assert.Equal(t, http.StatusNotFound, serviceErr.StatusCode)
	assert.Equal(t, CodeProductNotFound, serviceErr.Code)
	assert.Equal(t, 0, gw.calls, "sale must never be submitted for an invalid cart")
	assert.Empty(t, orders.created)
}

func TestCheckout_EmptyCartRejected(t *testing.T) {
	products, _ := twoProductCatalog(t)
	svc := newCheckoutService(products, &fakeOrderRepo{}, &fakeGateway{}, nil)

	_, serviceErr := svc.Checkout(context.Background(), primitive.NewObjectID().Hex(), "", &CheckoutRequest{Nonce: "n"})

	require.NotNil(t, serviceErr)
	assert.Equal(t, http.StatusBadRequest, serviceErr.StatusCode)
}

func TestCheckout_ReplayedKeyDoesNotChargeTwice(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn123"}}
	idem := newFakeIdemStore()
	svc := newCheckoutService(products, orders, gw, idem)

	buyer := primitive.NewObjectID().Hex()
	req := &CheckoutRequest{Nonce: "n", Cart: cart}

	first, serviceErr := svc.Checkout(context.Background(), buyer, "attempt-1", req)
	require.Nil(t, serviceErr)

	second, serviceErr := svc.Checkout(context.Background(), buyer, "attempt-1", req)
	require.Nil(t, serviceErr)

	assert.Equal(t, 1, gw.calls, "replay must not submit a second sale")
	assert.Len(t, orders.created, 1)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
}

func TestCheckout_DeclinedReleasesKeyForRetry(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeDeclined, Reason: "Declined"}}
	idem := newFakeIdemStore()
	svc := newCheckoutService(products, orders, gw, idem)

	buyer := primitive.NewObjectID().Hex()
	req := &CheckoutRequest{Nonce: "n", Cart: cart}

	_, serviceErr := svc.Checkout(context.Background(), buyer, "attempt-1", req)
	require.NotNil(t, serviceErr)

	// A decline is terminal for the attempt; the same key may retry with a
	// different payment method.
	gw.result = gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn2"}
	_, serviceErr = svc.Checkout(context.Background(), buyer, "attempt-1", req)
	require.Nil(t, serviceErr)
	assert.Equal(t, 2, gw.calls)
	assert.Len(t, orders.created, 1)
}

func TestCheckout_GatewayErrorKeepsReservation(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeGatewayError, Reason: "timeout"}}
	idem := newFakeIdemStore()
	svc := newCheckoutService(products, orders, gw, idem)

	buyer := primitive.NewObjectID().Hex()
	req := &CheckoutRequest{Nonce: "n", Cart: cart}

	_, serviceErr := svc.Checkout(context.Background(), buyer, "attempt-1", req)
	require.NotNil(t, serviceErr)
	assert.Equal(t, http.StatusBadGateway, serviceErr.StatusCode)
	assert.Equal(t, CodeGatewayError, serviceErr.Code)

	// The sale outcome is unknown; a same-key retry must be refused rather
	// than risk a double charge.
	_, serviceErr = svc.Checkout(context.Background(), buyer, "attempt-1", req)
	require.NotNil(t, serviceErr)
	assert.Equal(t, http.StatusConflict, serviceErr.StatusCode)
	assert.Equal(t, CodeCheckoutInProgress, serviceErr.Code)
	assert.Equal(t, 1, gw.calls)
}

func TestCheckout_DuplicateTransactionTreatedAsRecorded(t *testing.T) {
	products, cart := twoProductCatalog(t)
	existing := &models.Order{
		ID:      primitive.NewObjectID(),
		Payment: models.PaymentRecord{Success: true, TransactionID: "txn123"},
	}
	orders := &fakeOrderRepo{duplicate: true, existing: existing}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn123"}}
	svc := newCheckoutService(products, orders, gw, nil)

	result, serviceErr := svc.Checkout(context.Background(), primitive.NewObjectID().Hex(), "", &CheckoutRequest{Nonce: "n", Cart: cart})

	require.Nil(t, serviceErr, "a duplicate insert means the order is already recorded")
	assert.True(t, result.Replayed)
	assert.Equal(t, existing.ID.Hex(), result.OrderID)
	assert.Empty(t, orders.created)
}

func TestCheckout_PersistFailureFlagsReconciliation(t *testing.T) {
	products, cart := twoProductCatalog(t)
	orders := &fakeOrderRepo{createErr: errors.New("connection reset")}
	gw := &fakeGateway{result: gateway.SaleResult{Outcome: gateway.OutcomeAuthorized, TransactionID: "txn123"}}
	svc := newCheckoutService(products, orders, gw, nil)

	_, serviceErr := svc.Checkout(context.Background(), primitive.NewObjectID().Hex(), "", &CheckoutRequest{Nonce: "n", Cart: cart})

	require.NotNil(t, serviceErr)
	assert.Equal(t, http.StatusInternalServerError, serviceErr.StatusCode)
	assert.Equal(t, CodeCapturedNotRecorded, serviceErr.Code)

	require.Len(t, orders.reconciliations, 1)
	rec := orders.reconciliations[0]
	assert.Equal(t, "txn123", rec.TransactionID)
	assert.Equal(t, int64(8998), rec.AmountCents)
	assert.Len(t, rec.Products, len(cart))
}
