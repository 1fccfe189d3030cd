package mongo

import (
	"context"
	"time"

	"github.com/arxiv/messaging-service/pkg/errors"
	storeerr "github.com/arxiv/messaging-service/pkg/errors/store"
	"github.com/arxiv/messaging-service/subscription"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StoreSubscription upserts by subscription_id, applying defaults and
// rejecting invalid documents before they ever reach the collection.
func (r *repository) StoreSubscription(ctx context.Context, sub subscription.Subscription) error {
	sub.ApplyDefaults()
	if err := sub.Validate(); err != nil {
		return errors.Wrap(storeerr.ErrInvalidSubscription, err)
	}

	filter := bson.M{"_id": sub.SubscriptionID}
	update := bson.M{"$set": sub}
	opts := options.Update().SetUpsert(true)
	if _, err := r.subscriptions.UpdateOne(ctx, filter, update, opts); err != nil {
		return errors.Wrap(storeerr.ErrCreateEntity, err)
	}
	return nil
}

func (r *repository) GetUserSubscriptions(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	return r.findSubscriptions(ctx, bson.M{"user_id": userID, "enabled": true})
}

func (r *repository) GetUserSubscriptionsAll(ctx context.Context, userID string) ([]subscription.Subscription, error) {
	return r.findSubscriptions(ctx, bson.M{"user_id": userID})
}

func (r *repository) GetSubscriptionsByFrequency(ctx context.Context, freq subscription.Frequency) ([]subscription.Subscription, error) {
	return r.findSubscriptions(ctx, bson.M{"aggregation_frequency": freq, "enabled": true})
}

func (r *repository) findSubscriptions(ctx context.Context, filter bson.M) ([]subscription.Subscription, error) {
	cursor, err := r.subscriptions.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	defer cursor.Close(ctx)

	subs := make([]subscription.Subscription, 0)
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	return subs, nil
}

func (r *repository) DeleteSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	res, err := r.subscriptions.DeleteOne(ctx, bson.M{"_id": subscriptionID})
	if err != nil {
		return false, errors.Wrap(storeerr.ErrRemoveEntity, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *repository) GetAllUsersWithSubscriptions(ctx context.Context) ([]string, error) {
	ids, err := r.subscriptions.Distinct(ctx, "user_id", bson.M{})
	if err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	users := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := id.(string); ok {
			users = append(users, s)
		}
	}
	return users, nil
}

func (r *repository) UpdateLastDelivered(ctx context.Context, subscriptionID string, at time.Time) error {
	filter := bson.M{"_id": subscriptionID}
	update := bson.M{"$set": bson.M{"last_delivered": at}}
	res, err := r.subscriptions.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(storeerr.ErrUpdateEntity, err)
	}
	if res.MatchedCount == 0 {
		return storeerr.ErrNotFound
	}
	return nil
}
