package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/marketplace/pkg/notify"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationsCollection = "notifications"

// OutboxStore persists notification intents next to the orders they belong
// to. Transitions enqueue; the dispatcher claims and settles.
type OutboxStore struct {
	notifications *mongo.Collection
}

func NewOutboxStore(repo *MongoRepository) *OutboxStore {
	return &OutboxStore{notifications: repo.Collection(notificationsCollection)}
}

func (s *OutboxStore) Enqueue(ctx context.Context, n *notify.Notification) error {
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ClaimPending atomically moves up to limit pending intents to sending and
// returns them. Claimed intents belong to this dispatcher until settled.
func (s *OutboxStore) ClaimPending(ctx context.Context, limit int) ([]*notify.Notification, error) {
	claimed := make([]*notify.Notification, 0, limit)
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "createdAt", Value: 1}})

	for len(claimed) < limit {
		var n notify.Notification
		err := s.notifications.FindOneAndUpdate(ctx,
			bson.M{"status": notify.StatusPending},
			bson.M{"$set": bson.M{"status": notify.StatusSending, "updatedAt": time.Now()}},
			opts,
		).Decode(&n)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return claimed, fmt.Errorf("claim notification: %w", err)
		}
		claimed = append(claimed, &n)
	}
	return claimed, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": notify.StatusSent, "updatedAt": time.Now()}})
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure. The intent returns to pending for
// another attempt until maxAttempts is reached, then parks as failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, sendErr error, maxAttempts int) error {
	var n notify.Notification
	err := s.notifications.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{
				"status":    notify.StatusPending,
				"lastError": sendErr.Error(),
				"updatedAt": time.Now(),
			},
			"$inc": bson.M{"attempts": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}

	if n.Attempts >= maxAttempts {
		_, err = s.notifications.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{"status": notify.StatusFailed, "updatedAt": time.Now()}})
		if err != nil {
			return fmt.Errorf("park notification: %w", err)
		}
	}
	return nil
}
