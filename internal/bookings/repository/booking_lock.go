package repository

import (
	"context"
	"fmt"
	"slotguard/pkg/config"
	"slotguard/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// BookingLockRepository stores advisory slot locks. Create fails with a duplicate key
// error while another holder's lock document exists.
type BookingLockRepository interface {
	Create(ctx context.Context, lock *model.BookingLock) error
	DeleteExpired(ctx context.Context, lockID string, now time.Time) (bool, error)
	Delete(ctx context.Context, lockID, owner string) error
}

type mongoBookingLockRepository struct {
	collection *mongo.Collection
}

func NewBookingLockRepository(cfg *config.Config) BookingLockRepository {
	return &mongoBookingLockRepository{
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(LockCollectionName),
	}
}

func (r *mongoBookingLockRepository) Create(ctx context.Context, lock *model.BookingLock) error {
	lock.CreatedAt = time.Now().UTC()
	_, err := r.collection.InsertOne(ctx, lock)
	return err
}

// DeleteExpired removes the lock only if it outlived its expiry; the TTL monitor runs
// once a minute, so stale locks are reclaimed here instead of waiting for it.
func (r *mongoBookingLockRepository) DeleteExpired(ctx context.Context, lockID string, now time.Time) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID, "expires_at": bson.M{"$lt": now}})
	if err != nil {
		return false, fmt.Errorf("failed to delete expired lock: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoBookingLockRepository) Delete(ctx context.Context, lockID, owner string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID, "owner": owner})
	return err
}
