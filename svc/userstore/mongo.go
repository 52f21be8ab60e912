package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/paywall/pkg/subscription"
)

const usersCollection = "users"

// MongoStore persists user records in a mongo collection keyed by uid.
// It implements subscription.UserStore with merge-on-write semantics:
// profile writes never clobber the subscription sub-document and vice
// versa.
type MongoStore struct {
	users *mongo.Collection
}

// NewMongoStore creates a store over the given database. Panics if the
// database is nil.
func NewMongoStore(db *mongo.Database) *MongoStore {
	if db == nil {
		panic("userstore: mongo database is required")
	}
	return &MongoStore{users: db.Collection(usersCollection)}
}

// Get retrieves a user record by uid.
func (s *MongoStore) Get(ctx context.Context, uid string) (*subscription.UserRecord, error) {
	var rec subscription.UserRecord
	err := s.users.FindOne(ctx, bson.M{"uid": uid}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, subscription.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", uid, err)
	}
	return &rec, nil
}

// SaveSubscription upserts the subscription sub-document. When no record
// exists yet (webhook arriving before the first login) a skeleton is
// created so the login flow can fill in profile fields later.
func (s *MongoStore) SaveSubscription(ctx context.Context, uid string, rec subscription.Record) error {
	now := time.Now().UnixMilli()
	_, err := s.users.UpdateOne(ctx,
		bson.M{"uid": uid},
		bson.M{
			"$set": bson.M{
				"subscription": rec,
				"lastLogin":    now,
			},
			"$setOnInsert": bson.M{
				"uid":        uid,
				"name":       "",
				"email":      "",
				"profilePic": "",
				"createdAt":  now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save subscription for %s: %w", uid, err)
	}
	return nil
}

// SaveProfile upserts profile fields at login. An existing subscription
// sub-document is preserved; the given record's subscription only seeds
// brand-new documents.
func (s *MongoStore) SaveProfile(ctx context.Context, user subscription.UserRecord) error {
	now := time.Now().UnixMilli()
	_, err := s.users.UpdateOne(ctx,
		bson.M{"uid": user.UID},
		bson.M{
			"$set": bson.M{
				"name":       user.Name,
				"email":      user.Email,
				"profilePic": user.ProfilePic,
				"lastLogin":  now,
			},
			"$setOnInsert": bson.M{
				"uid":          user.UID,
				"subscription": user.Subscription,
				"createdAt":    now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save profile for %s: %w", user.UID, err)
	}
	return nil
}

var _ subscription.UserStore = (*MongoStore)(nil)
