// Package catalog is the product catalog collaborator: it resolves product
// ids to authoritative price/seller/stock state and performs stock
// decrements for paid orders.
package catalog

import (
	"context"
	"fmt"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const productsCollection = "products"

type MongoCatalog struct {
	products *mongo.Collection
}

func NewMongoCatalog(repo *repository.MongoRepository) *MongoCatalog {
	return &MongoCatalog{products: repo.Collection(productsCollection)}
}

// Resolve fetches the products for ids. Unknown ids are simply absent from
// the result; the caller decides whether that fails the operation.
func (c *MongoCatalog) Resolve(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	cursor, err := c.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []*models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	resolved := make(map[string]*models.Product, len(products))
	for _, p := range products {
		resolved[p.ID] = p
	}
	return resolved, nil
}

// DecrementStock lowers the product's stock by qty, floored at zero. The
// floor runs inside a single pipeline update so concurrent decrements can
// never drive stock negative.
func (c *MongoCatalog) DecrementStock(ctx context.Context, productID string, qty int64) error {
	result, err := c.products.UpdateOne(ctx,
		bson.M{"_id": productID},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"stock": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$stock", qty}}}},
			}}},
		})
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", productID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("product %s not found", productID)
	}
	return nil
}
