// Package admin manages the admin roster. The configured owner is privileged by
// construction and is never read from or written to the admins collection.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"contact_relay_bot/internal/domain"
	"contact_relay_bot/internal/logging"
)

type adminCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Registry answers privilege checks straight from the store; nothing is cached
// in process.
type Registry struct {
	admins  adminCollection
	ownerID int64
	logger  *logrus.Entry
	now     func() time.Time
}

// NewRegistry constructs a Registry for the admins collection and owner id.
func NewRegistry(admins adminCollection, ownerID int64, logger *logrus.Entry) *Registry {
	logger = logging.Component(logger, "admin")

	return &Registry{
		admins:  admins,
		ownerID: ownerID,
		logger:  logger,
		now:     time.Now,
	}
}

// OwnerID returns the configured owner.
func (r *Registry) OwnerID() int64 {
	return r.ownerID
}

// IsOwner reports whether userID is the configured owner.
func (r *Registry) IsOwner(userID int64) bool {
	return r != nil && userID != 0 && userID == r.ownerID
}

// IsPrivileged reports whether userID is the owner or a stored admin.
func (r *Registry) IsPrivileged(ctx context.Context, userID int64) (bool, error) {
	if r.IsOwner(userID) {
		return true, nil
	}
	if err := r.validate(ctx); err != nil {
		return false, err
	}
	if userID == 0 {
		return false, nil
	}

	count, err := r.admins.CountDocuments(ctx, bson.M{"user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}

	return count > 0, nil
}

// Role classifies userID as owner, admin or plain user.
func (r *Registry) Role(ctx context.Context, userID int64) (string, error) {
	if r.IsOwner(userID) {
		return domain.RoleOwner, nil
	}

	privileged, err := r.IsPrivileged(ctx, userID)
	if err != nil {
		return "", err
	}
	if privileged {
		return domain.RoleAdmin, nil
	}

	return domain.RoleUser, nil
}

// Add grants admin status. Granting an existing admin reports
// AdminAlreadyPresent and writes nothing.
func (r *Registry) Add(ctx context.Context, userID int64) (domain.AddResult, error) {
	if err := r.validate(ctx); err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, errors.New("user id is required")
	}

	result, err := r.admins.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"user_id":  userID,
			"added_at": r.now().UTC().Truncate(time.Millisecond),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.AdminAlreadyPresent, nil
		}
		return 0, fmt.Errorf("add admin: %w", err)
	}

	if result == nil || result.UpsertedCount == 0 {
		return domain.AdminAlreadyPresent, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "admin_added",
		"user_id": userID,
	}).Info("granted admin status")

	return domain.AdminAdded, nil
}

// Remove revokes admin status. Revoking a non-admin reports AdminWasAbsent.
// The owner cannot be revoked and yields ErrOwnerImmutable without a write.
func (r *Registry) Remove(ctx context.Context, userID int64) (domain.RemoveResult, error) {
	if r.IsOwner(userID) {
		return 0, domain.ErrOwnerImmutable
	}
	if err := r.validate(ctx); err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, errors.New("user id is required")
	}

	result, err := r.admins.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("remove admin: %w", err)
	}

	if result == nil || result.DeletedCount == 0 {
		return domain.AdminWasAbsent, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "admin_removed",
		"user_id": userID,
	}).Info("revoked admin status")

	return domain.AdminRemoved, nil
}

// List returns the stored admins in the order they were added. The owner is
// only included when it was also added explicitly.
func (r *Registry) List(ctx context.Context) ([]int64, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}

	cursor, err := r.admins.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find admins: %w", err)
	}

	var admins []domain.Admin
	if err := cursor.All(ctx, &admins); err != nil {
		return nil, fmt.Errorf("decode admins: %w", err)
	}

	ids := make([]int64, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.UserID)
	}

	return ids, nil
}

func (r *Registry) validate(ctx context.Context) error {
	if r == nil || r.admins == nil {
		return errors.New("admin registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
