package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopverse/checkout-service/models"
)

var ErrProductNotFound = errors.New("product not found")

// ProductRepository is the read-only view of the catalog the checkout flow
// needs. The catalog service owns product writes.
type ProductRepository interface {
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error)
}

// MongoProductRepository implements ProductRepository against the shared
// products collection.
type MongoProductRepository struct {
	products *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) *MongoProductRepository {
	return &MongoProductRepository{products: db.Collection("products")}
}

// FindByIDs loads current product documents for the given ids. The photo
// binary is never fetched. Missing ids are detected by the caller comparing
// lengths; lookups never invent placeholder products.
func (r *MongoProductRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cur, err := r.products.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"photo": 0}),
	)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cur.Close(ctx)

	var products []models.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}
