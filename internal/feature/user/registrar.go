// Package user keeps the append-only registry of everyone who has contacted
// the bot. It is used for counting and broadcast targeting only.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"contact_relay_bot/internal/logging"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Registry records users on first contact.
type Registry struct {
	users  userCollection
	logger *logrus.Entry
	now    func() time.Time
}

// NewRegistry constructs a Registry for the provided users collection.
func NewRegistry(users userCollection, logger *logrus.Entry) *Registry {
	logger = logging.Component(logger, "user")

	return &Registry{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// RecordSeen inserts the user with the current time unless a record already
// exists. Existing records, including first_name, are left untouched. The
// returned bool is true when a record was created.
func (r *Registry) RecordSeen(ctx context.Context, userID int64, firstName string) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("user registry is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if userID == 0 {
		return false, errors.New("user id is required")
	}

	joinedAt := r.now().UTC().Truncate(time.Millisecond)
	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$setOnInsert": bson.M{
				"user_id":    userID,
				"first_name": firstName,
				"joined_at":  joinedAt,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent first contact won the insert.
			return false, nil
		}
		return false, fmt.Errorf("record user: %w", err)
	}

	if result == nil || result.UpsertedCount == 0 {
		return false, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_registered",
		"user_id": userID,
	}).Info("registered new user")

	return true, nil
}

// Count returns the number of distinct users ever seen.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	if r == nil || r.users == nil {
		return 0, errors.New("user registry is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := r.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// Each streams every known user_id to fn in storage order. Iteration stops at
// the first error returned by fn. Every call opens a fresh cursor.
func (r *Registry) Each(ctx context.Context, fn func(userID int64) error) error {
	if r == nil || r.users == nil {
		return errors.New("user registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	cursor, err := r.users.Find(ctx, bson.D{},
		options.Find().SetProjection(bson.M{"user_id": 1, "_id": 0}),
	)
	if err != nil {
		return fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		if err := fn(row.UserID); err != nil {
			return err
		}
	}

	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterate users: %w", err)
	}

	return nil
}
