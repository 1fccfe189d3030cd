// Package store carries the sentinel errors the event/subscription
// repository returns, one small sentinel set for the storage layer.
package store

import "github.com/arxiv/messaging-service/pkg/errors"

var (
	// ErrNotFound indicates the requested event or subscription does
	// not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict indicates a uniqueness constraint was violated
	// (duplicate event_id or subscription_id on insert where upsert
	// semantics were not requested).
	ErrConflict = errors.New("entity already exists")

	// ErrCreateEntity indicates a store write failed.
	ErrCreateEntity = errors.New("failed to create entity")

	// ErrUpdateEntity indicates a store update failed.
	ErrUpdateEntity = errors.New("failed to update entity")

	// ErrRemoveEntity indicates a store delete failed.
	ErrRemoveEntity = errors.New("failed to remove entity")

	// ErrViewEntity indicates a store read failed.
	ErrViewEntity = errors.New("failed to retrieve entity")

	// ErrInvalidSubscription indicates a subscription violates the
	// data model invariants (missing delivery-method address, unknown
	// enum value).
	ErrInvalidSubscription = errors.New("invalid subscription")
)
