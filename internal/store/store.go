// Package store owns the MongoDB client and hands out the users, admins and
// settings collections.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"contact_relay_bot/internal/config"
)

// Collection names used across the bot.
const (
	CollectionUsers    = "users"
	CollectionAdmins   = "admins"
	CollectionSettings = "settings"
)

const (
	appName                = "contact-relay-bot"
	serverSelectionTimeout = 5 * time.Second
)

// mongoClient is the subset of *mongo.Client the manager uses.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// indexPlan lists the indexes EnsureBaseIndexes creates, per collection, in
// creation order. Settings is a single document keyed by _id and needs none.
var indexPlan = []struct {
	collection string
	models     []mongo.IndexModel
}{
	{
		collection: CollectionUsers,
		models: []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("user_id_unique").SetUnique(true),
			},
		},
	},
	{
		collection: CollectionAdmins,
		models: []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("admin_user_id_unique").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "added_at", Value: 1}},
				Options: options.Index().SetName("admin_added_at"),
			},
		},
	},
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager connects to cfg.MongoURI and verifies the primary with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName(appName).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := connectMongo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Users returns the users collection.
func (m *Manager) Users() *mongo.Collection {
	return m.db.Collection(CollectionUsers)
}

// Admins returns the admins collection. The owner is never stored here.
func (m *Manager) Admins() *mongo.Collection {
	return m.db.Collection(CollectionAdmins)
}

// Settings returns the settings collection.
func (m *Manager) Settings() *mongo.Collection {
	return m.db.Collection(CollectionSettings)
}

// Ping verifies the primary is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

// EnsureBaseIndexes creates the indexes in indexPlan and stops at the first
// failure. Creating an existing index is a no-op on the server.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	for _, plan := range indexPlan {
		if _, err := createIndexes(ctx, m.db.Collection(plan.collection), plan.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", plan.collection, err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
