package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/orders"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ordersCollection = "orders"

// OrderStore is the mongo implementation of orders.Store. State transitions
// are single conditional updates: the filter carries the required current
// state, so two concurrent transitions on one order cannot both apply.
type OrderStore struct {
	orders *mongo.Collection
}

func NewOrderStore(repo *MongoRepository) *OrderStore {
	return &OrderStore{orders: repo.Collection(ordersCollection)}
}

func (s *OrderStore) Insert(ctx context.Context, order *models.Order) error {
	if _, err := s.orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrNoOrder
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

func (s *OrderStore) ListByBuyer(ctx context.Context, buyerID string, limit, offset int64) ([]*models.Order, int64, error) {
	filter := bson.M{"buyerId": buyerID}

	total, err := s.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)
	cursor, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*models.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return result, total, nil
}

// guardedUpdate applies update to the order matching filter. When the guard
// misses on an existing document the current document is returned with
// applied == false; a missing document is orders.ErrNoOrder.
func (s *OrderStore) guardedUpdate(ctx context.Context, id string, filter, update bson.M) (*models.Order, bool, error) {
	filter["_id"] = id
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Order
	err := s.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("update order: %w", err)
	}

	current, gerr := s.Get(ctx, id)
	if gerr != nil {
		return nil, false, gerr
	}
	return current, false, nil
}

func (s *OrderStore) MarkPaid(ctx context.Context, id string, result models.PaymentResult, at time.Time) (*models.Order, bool, error) {
	return s.guardedUpdate(ctx, id,
		bson.M{"paidAt": nil, "cancelledAt": nil},
		bson.M{
			"$set": bson.M{
				"paidAt":        at,
				"orderStatus":   models.OrderStatusProcessing,
				"paymentResult": result,
				"updatedAt":     at,
			},
			"$inc": bson.M{"version": 1},
		})
}

func (s *OrderStore) MarkShipped(ctx context.Context, id string, details models.ShippingDetails) (*models.Order, bool, error) {
	return s.guardedUpdate(ctx, id,
		bson.M{"paidAt": bson.M{"$ne": nil}, "shippedAt": nil, "cancelledAt": nil},
		bson.M{
			"$set": bson.M{
				"shippedAt":       details.ShippedAt,
				"orderStatus":     models.OrderStatusShipped,
				"shippingDetails": details,
				"updatedAt":       details.ShippedAt,
			},
			"$inc": bson.M{"version": 1},
		})
}

func (s *OrderStore) MarkDelivered(ctx context.Context, id string, at time.Time, confirmedReceipt bool) (*models.Order, bool, error) {
	set := bson.M{
		"deliveredAt": at,
		"orderStatus": models.OrderStatusDelivered,
		"updatedAt":   at,
	}
	if confirmedReceipt {
		set["confirmedReceiptAt"] = at
	}
	return s.guardedUpdate(ctx, id,
		bson.M{"shippedAt": bson.M{"$ne": nil}, "deliveredAt": nil},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}})
}

func (s *OrderStore) MarkCancelled(ctx context.Context, id string, at time.Time) (*models.Order, bool, error) {
	return s.guardedUpdate(ctx, id,
		bson.M{"cancelledAt": nil, "deliveredAt": nil},
		bson.M{
			"$set": bson.M{
				"cancelledAt": at,
				"orderStatus": models.OrderStatusCancelled,
				"updatedAt":   at,
			},
			"$inc": bson.M{"version": 1},
		})
}

func (s *OrderStore) OverrideStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	set := bson.M{"orderStatus": status, "updatedAt": at}
	switch status {
	case models.OrderStatusShipped:
		set["shippedAt"] = at
	case models.OrderStatusDelivered:
		set["deliveredAt"] = at
	case models.OrderStatusCancelled:
		set["cancelledAt"] = at
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Order
	err := s.orders.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}}, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrNoOrder
	}
	if err != nil {
		return nil, fmt.Errorf("override status: %w", err)
	}
	return &updated, nil
}

func (s *OrderStore) OpenDispute(ctx context.Context, id string, dispute models.Dispute) (*models.Order, bool, error) {
	return s.guardedUpdate(ctx, id,
		bson.M{"disputeStatus": models.DisputeStatusNone},
		bson.M{
			"$set": bson.M{
				"disputeStatus": models.DisputeStatusOpen,
				"dispute":       dispute,
				"updatedAt":     dispute.CreatedAt,
			},
			"$inc": bson.M{"version": 1},
		})
}

func (s *OrderStore) UpdateDispute(ctx context.Context, id string, update orders.DisputeUpdate) (*models.Order, bool, error) {
	set := bson.M{
		"disputeStatus":     update.Status,
		"dispute.status":    update.Status,
		"dispute.updatedAt": update.At,
		"updatedAt":         update.At,
	}
	if update.Resolution != "" {
		set["dispute.resolution"] = update.Resolution
	}
	if update.AdminNotes != "" {
		set["dispute.adminNotes"] = update.AdminNotes
	}
	if models.DisputeTerminal(update.Status) {
		set["dispute.resolvedAt"] = update.At
		set["dispute.resolvedBy"] = update.ResolvedBy
	}

	// Guard on a live dispute so a terminal dispute is never reopened by a
	// racing admin.
	return s.guardedUpdate(ctx, id,
		bson.M{"disputeStatus": bson.M{"$in": []models.DisputeStatus{
			models.DisputeStatusOpen,
			models.DisputeStatusInReview,
		}}},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}})
}

func (s *OrderStore) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	cursor, err := s.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$orderStatus", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.OrderStatus `bson:"_id"`
		Count  int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode status counts: %w", err)
	}

	counts := make(map[models.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (s *OrderStore) PaidRevenue(ctx context.Context) (string, error) {
	cursor, err := s.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"paidAt": bson.M{"$ne": nil}}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"revenue": bson.M{"$sum": bson.M{"$toDecimal": "$totalPrice"}},
		}}},
	})
	if err != nil {
		return "", fmt.Errorf("paid revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Revenue primitive.Decimal128 `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return "", fmt.Errorf("decode revenue: %w", err)
	}
	if len(rows) == 0 {
		return "0.00", nil
	}
	return rows[0].Revenue.String(), nil
}

func (s *OrderStore) MonthlyRevenue(ctx context.Context, months int) ([]orders.MonthlyPoint, error) {
	cursor, err := s.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"paidAt": bson.M{"$ne": nil}}}},
		{{Key: "$group", Value: bson.M{
			"_id":     bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": "$createdAt"}},
			"orders":  bson.M{"$sum": 1},
			"revenue": bson.M{"$sum": bson.M{"$toDecimal": "$totalPrice"}},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": -1}}},
		{{Key: "$limit", Value: months}},
	})
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Month   string               `bson:"_id"`
		Orders  int64                `bson:"orders"`
		Revenue primitive.Decimal128 `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode monthly revenue: %w", err)
	}

	points := make([]orders.MonthlyPoint, len(rows))
	for i, row := range rows {
		points[i] = orders.MonthlyPoint{
			Month:   row.Month,
			Orders:  row.Orders,
			Revenue: row.Revenue.String(),
		}
	}
	return points, nil
}

func (s *OrderStore) CountSellerSales(ctx context.Context, sellerID string, statuses []models.OrderStatus) (int64, error) {
	count, err := s.orders.CountDocuments(ctx, bson.M{
		"items.sellerId": sellerID,
		"orderStatus":    bson.M{"$in": statuses},
		"cancelledAt":    nil,
	})
	if err != nil {
		return 0, fmt.Errorf("count seller sales: %w", err)
	}
	return count, nil
}

func (s *OrderStore) CountSellerDisputes(ctx context.Context, sellerID string, statuses []models.DisputeStatus) (int64, error) {
	count, err := s.orders.CountDocuments(ctx, bson.M{
		"items.sellerId": sellerID,
		"disputeStatus":  bson.M{"$in": statuses},
	})
	if err != nil {
		return 0, fmt.Errorf("count seller disputes: %w", err)
	}
	return count, nil
}
