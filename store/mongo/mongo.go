// Package mongo implements store.Store over MongoDB: a thin wrapper
// per collection, bson.M filters, and cursor-based reads.
package mongo

import (
	"github.com/arxiv/messaging-service/store"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	eventsCollection        = "events"
	subscriptionsCollection = "subscriptions"
)

type repository struct {
	events        *mongo.Collection
	subscriptions *mongo.Collection
}

var _ store.Store = (*repository)(nil)

// New returns a store.Store backed by the given database's "events"
// and "subscriptions" collections.
func New(db *mongo.Database) store.Store {
	return &repository{
		events:        db.Collection(eventsCollection),
		subscriptions: db.Collection(subscriptionsCollection),
	}
}
