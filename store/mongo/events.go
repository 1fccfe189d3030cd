package mongo

import (
	"context"
	"time"

	"github.com/arxiv/messaging-service/event"
	"github.com/arxiv/messaging-service/pkg/errors"
	storeerr "github.com/arxiv/messaging-service/pkg/errors/store"
	"github.com/arxiv/messaging-service/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StoreEvent upserts by event_id, so redelivered bus messages land on
// the same document instead of duplicating it.
func (r *repository) StoreEvent(ctx context.Context, ev event.Event) error {
	filter := bson.M{"_id": ev.EventID}
	update := bson.M{"$set": ev}
	opts := options.Update().SetUpsert(true)
	if _, err := r.events.UpdateOne(ctx, filter, update, opts); err != nil {
		return errors.Wrap(storeerr.ErrCreateEntity, err)
	}
	return nil
}

func (r *repository) GetUserEvents(ctx context.Context, userID string, since *time.Time) ([]event.Event, error) {
	filter := bson.M{"user_id": userID}
	if since != nil {
		filter["timestamp"] = bson.M{"$gte": *since}
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	defer cursor.Close(ctx)

	events := make([]event.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	return events, nil
}

// ClearUserEvents deletes events for userID older than before, in
// batches bounded by store.ClearBatchSize so no single bulk write
// grows without bound.
func (r *repository) ClearUserEvents(ctx context.Context, userID string, before time.Time) error {
	filter := bson.M{
		"user_id":   userID,
		"timestamp": bson.M{"$lt": before},
	}
	for {
		opts := options.Find().
			SetLimit(store.ClearBatchSize).
			SetProjection(bson.M{"_id": 1})
		cursor, err := r.events.Find(ctx, filter, opts)
		if err != nil {
			return errors.Wrap(storeerr.ErrRemoveEntity, err)
		}
		var batch []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &batch); err != nil {
			cursor.Close(ctx)
			return errors.Wrap(storeerr.ErrRemoveEntity, err)
		}
		cursor.Close(ctx)
		if len(batch) == 0 {
			return nil
		}

		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		if _, err := r.events.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
			return errors.Wrap(storeerr.ErrRemoveEntity, err)
		}
		if len(batch) < store.ClearBatchSize {
			return nil
		}
	}
}

func (r *repository) DeleteEventByID(ctx context.Context, eventID string) (bool, error) {
	res, err := r.events.DeleteOne(ctx, bson.M{"_id": eventID})
	if err != nil {
		return false, errors.Wrap(storeerr.ErrRemoveEntity, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *repository) DeleteEventsByIDs(ctx context.Context, eventIDs []string) (store.DeleteResult, error) {
	result := store.DeleteResult{}
	if len(eventIDs) == 0 {
		return result, nil
	}

	for start := 0; start < len(eventIDs); start += store.ClearBatchSize {
		end := start + store.ClearBatchSize
		if end > len(eventIDs) {
			end = len(eventIDs)
		}
		batch := eventIDs[start:end]

		res, err := r.events.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": batch}})
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, batch...)
			continue
		}
		result.Deleted += int(res.DeletedCount)
		if int(res.DeletedCount) < len(batch) {
			// DeletedCount undercounts batch: some ids were never
			// stored (not a failure) or survived the delete (a real
			// failure). Only ids still present after the attempt are
			// reported as failed.
			stillPresent, findErr := r.idsStillPresent(ctx, batch)
			if findErr != nil {
				continue
			}
			result.FailedIDs = append(result.FailedIDs, stillPresent...)
		}
	}
	return result, nil
}

func (r *repository) idsStillPresent(ctx context.Context, ids []string) ([]string, error) {
	cursor, err := r.events.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var present []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &present); err != nil {
		return nil, err
	}
	out := make([]string, len(present))
	for i, p := range present {
		out[i] = p.ID
	}
	return out, nil
}

func (r *repository) GetUndeliveredEvents(ctx context.Context, limit int) (map[string][]event.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := r.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	defer cursor.Close(ctx)

	events := make([]event.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, errors.Wrap(storeerr.ErrViewEntity, err)
	}

	byUser := make(map[string][]event.Event)
	for _, ev := range events {
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}
	return byUser, nil
}

func (r *repository) GetUndeliveredEventsByUser(ctx context.Context, userID string) ([]event.Event, error) {
	return r.GetUserEvents(ctx, userID, nil)
}

func (r *repository) GetUndeliveredStats(ctx context.Context) (store.UndeliveredStats, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return store.UndeliveredStats{}, errors.Wrap(storeerr.ErrViewEntity, err)
	}
	defer cursor.Close(ctx)

	events := make([]event.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return store.UndeliveredStats{}, errors.Wrap(storeerr.ErrViewEntity, err)
	}

	stats := store.UndeliveredStats{
		PerUserCounts: make(map[string]int),
		PerTypeCounts: make(map[event.Type]int),
		OldestPending: make(map[string]time.Time),
	}
	users := make(map[string]struct{})
	for _, ev := range events {
		stats.TotalEvents++
		stats.PerUserCounts[ev.UserID]++
		stats.PerTypeCounts[ev.EventType]++
		users[ev.UserID] = struct{}{}
		if oldest, ok := stats.OldestPending[ev.UserID]; !ok || ev.Timestamp.Before(oldest) {
			stats.OldestPending[ev.UserID] = ev.Timestamp
		}
	}
	stats.TotalUsers = len(users)
	return stats, nil
}
