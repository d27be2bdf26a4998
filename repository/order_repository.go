package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopverse/checkout-service/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateTransaction means an order for this gateway transaction id
	// is already recorded. Callers treat it as success, not failure.
	ErrDuplicateTransaction = errors.New("order already recorded for transaction")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) (primitive.ObjectID, error)
	FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.PopulatedOrder, error)
	FindAll(ctx context.Context) ([]models.PopulatedOrder, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID primitive.ObjectID, status models.OrderStatus) (*models.Order, error)
	RecordReconciliation(ctx context.Context, rec *models.ReconciliationRecord) error
}

// MongoOrderRepository implements OrderRepository against the orders
// collection, with a side audit collection for captured-but-unrecorded
// payments.
type MongoOrderRepository struct {
	orders          *mongo.Collection
	reconciliations *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{
		orders:          db.Collection("orders"),
		reconciliations: db.Collection("payment_reconciliations"),
	}
}

// EnsureIndexes creates the unique index on payment.transaction_id. The
// index is the durable backstop for at-most-one order per authorized
// transaction.
func (r *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "payment.transaction_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create transaction_id index: %w", err)
	}
	return nil
}

// Create inserts one order and returns its id. A duplicate transaction id
// maps to ErrDuplicateTransaction.
func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	res, err := r.orders.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, ErrDuplicateTransaction
		}
		return primitive.NilObjectID, fmt.Errorf("insert order: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return id, nil
}

// FindByBuyer returns the buyer's orders newest-first with products and
// buyer name resolved.
func (r *MongoOrderRepository) FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.PopulatedOrder, error) {
	return r.aggregate(ctx, bson.M{"buyer": buyerID})
}

// FindAll returns every order newest-first for the admin listing.
func (r *MongoOrderRepository) FindAll(ctx context.Context) ([]models.PopulatedOrder, error) {
	return r.aggregate(ctx, bson.M{})
}

// aggregate resolves product and buyer references in one pipeline. Product
// photos and all buyer fields except the name are projected out of the
// response payload.
func (r *MongoOrderRepository) aggregate(ctx context.Context, match bson.M) ([]models.PopulatedOrder, error) {
	pipeline := []bson.M{
		{"$match": match},
		{"$sort": bson.M{"createdAt": -1}},
		{"$lookup": bson.M{
			"from":         "products",
			"localField":   "products",
			"foreignField": "_id",
			"as":           "products",
		}},
		{"$lookup": bson.M{
			"from":         "users",
			"localField":   "buyer",
			"foreignField": "_id",
			"as":           "buyer",
		}},
		{"$unwind": bson.M{"path": "$buyer", "preserveNullAndEmptyArrays": true}},
		{"$project": bson.M{
			"products.photo": 0,
			"buyer.password": 0,
			"buyer.email":    0,
			"buyer.phone":    0,
			"buyer.address":  0,
			"buyer.answer":   0,
			"buyer.role":     0,
		}},
	}

	cur, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}
	defer cur.Close(ctx)

	var orders []models.PopulatedOrder
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func (r *MongoOrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	var order models.Order
	err := r.orders.FindOne(ctx, bson.M{"payment.transaction_id": transactionID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order by transaction: %w", err)
	}
	return &order, nil
}

// UpdateStatus overwrites the order status in a single conditional update so
// concurrent admin edits cannot produce a torn write. Status values are
// validated by the service layer; transitions are intentionally
// unrestricted.
func (r *MongoOrderRepository) UpdateStatus(ctx context.Context, orderID primitive.ObjectID, status models.OrderStatus) (*models.Order, error) {
	var order models.Order
	err := r.orders.FindOneAndUpdate(ctx,
		bson.M{"_id": orderID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return &order, nil
}

// RecordReconciliation appends an audit entry for a payment that was
// captured at the gateway but whose order insert failed.
func (r *MongoOrderRepository) RecordReconciliation(ctx context.Context, rec *models.ReconciliationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := r.reconciliations.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert reconciliation record: %w", err)
	}
	return nil
}
