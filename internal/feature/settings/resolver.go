// Package settings resolves the single settings document behind /start and
// /help, seeding it with compiled-in defaults on first read.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"contact_relay_bot/internal/domain"
	"contact_relay_bot/internal/logging"
)

// DocumentID addresses the settings document.
const DocumentID = "bot_settings"

type settingsCollection interface {
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Resolver reads and writes the settings document.
type Resolver struct {
	settings settingsCollection
	defaults domain.Settings
	logger   *logrus.Entry
}

// NewResolver constructs a Resolver seeded with domain.DefaultSettings.
func NewResolver(settings settingsCollection, logger *logrus.Entry) *Resolver {
	logger = logging.Component(logger, "settings")

	return &Resolver{
		settings: settings,
		defaults: domain.DefaultSettings(),
		logger:   logger,
	}
}

// Get returns the stored settings, creating the document from defaults when it
// does not exist yet. Concurrent first reads converge on a single document.
func (r *Resolver) Get(ctx context.Context) (domain.Settings, error) {
	if err := r.validate(ctx); err != nil {
		return domain.Settings{}, err
	}

	settings, err := r.getOrSeed(ctx)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Lost the upsert race; the winner's document is there now.
		settings, err = r.getOrSeed(ctx)
	}
	if err != nil {
		return domain.Settings{}, err
	}

	return settings, nil
}

func (r *Resolver) getOrSeed(ctx context.Context) (domain.Settings, error) {
	result := r.settings.FindOneAndUpdate(ctx,
		bson.M{"_id": DocumentID},
		bson.M{"$setOnInsert": r.seed(nil)},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)
	if result == nil {
		return domain.Settings{}, errors.New("load settings returned no result")
	}
	if err := result.Err(); err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	var settings domain.Settings
	if err := result.Decode(&settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	return settings, nil
}

// Update overwrites a single field. Unknown fields are rejected with
// *domain.InvalidFieldError before any write.
func (r *Resolver) Update(ctx context.Context, field, value string) error {
	if !domain.IsSettingsField(field) {
		return &domain.InvalidFieldError{Field: field}
	}
	if err := r.validate(ctx); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{field: value}}
	if seed := r.seed(&field); len(seed) > 0 {
		update["$setOnInsert"] = seed
	}

	if _, err := r.settings.UpdateOne(ctx,
		bson.M{"_id": DocumentID},
		update,
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("update setting %s: %w", field, err)
	}

	r.logger.WithFields(logging.Fields{
		"event": "settings_updated",
		"field": field,
	}).Info("updated setting")

	return nil
}

// Reset restores every field to its compiled-in default.
func (r *Resolver) Reset(ctx context.Context) error {
	if err := r.validate(ctx); err != nil {
		return err
	}

	if _, err := r.settings.UpdateOne(ctx,
		bson.M{"_id": DocumentID},
		bson.M{"$set": r.seed(nil)},
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}

	r.logger.WithField("event", "settings_reset").Info("restored default settings")

	return nil
}

// seed returns the default field values, leaving out skip when set so it can
// be combined with a $set on the same field.
func (r *Resolver) seed(skip *string) bson.M {
	doc := bson.M{}
	for _, field := range domain.SettingsFields() {
		if skip != nil && *skip == field {
			continue
		}
		doc[field] = r.defaults.Value(field)
	}
	return doc
}

func (r *Resolver) validate(ctx context.Context) error {
	if r == nil || r.settings == nil {
		return errors.New("settings resolver is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
