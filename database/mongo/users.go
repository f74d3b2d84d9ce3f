package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/prom-tracker/errs"
)

func (s *Store) EnsureUser(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "ensure_user.hash")
	}

	_, err = s.db.Collection(users).UpdateByID(ctx, username,
		bson.M{"$set": bson.M{"password_hash": hash}},
		options.Update().SetUpsert(true),
	)
	return errors.Wrap(err, "ensure_user")
}

func (s *Store) ValidateUser(ctx context.Context, username, password string) error {
	var doc struct {
		Hash []byte `bson:"password_hash"`
	}
	err := s.db.Collection(users).FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return errs.NotFound("user", username)
	}
	if err != nil {
		return errors.Wrap(err, "validate_user")
	}

	return bcrypt.CompareHashAndPassword(doc.Hash, []byte(password))
}

func (s *Store) StoreToken(ctx context.Context, username, tokenID, refreshTokenID string, expiration time.Time) error {
	_, err := s.db.Collection(tokens).InsertOne(ctx, bson.M{
		"username":         username,
		"token_id":         tokenID,
		"refresh_token_id": refreshTokenID,
		"expiration":       expiration.UTC(),
	})
	return errors.Wrap(err, "store_token")
}

func (s *Store) ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) (time.Time, error) {
	var doc struct {
		Expiration time.Time `bson:"expiration"`
	}
	err := s.db.Collection(tokens).FindOneAndDelete(ctx, bson.M{
		"username":         username,
		"token_id":         tokenID,
		"refresh_token_id": refreshTokenID,
	}).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		return doc.Expiration, errs.NotFound("token", tokenID)
	}
	return doc.Expiration, errors.Wrap(err, "consume_token")
}
