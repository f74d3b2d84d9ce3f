// Package mongo implements store.Store on MongoDB.
//
// MongoDB only offers multi-document transactions on replica sets, so the
// writes that SQLite groups in a transaction are issued one after the other
// here. A failure halfway through an import or an accepted outcome leaves
// the earlier writes in place.
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/mbolis/prom-tracker/errs"
	"github.com/mbolis/prom-tracker/log"
	"github.com/mbolis/prom-tracker/store"
)

// DefaultDatabase is used when the connection URI names no database.
const DefaultDatabase = "prom"

const (
	counters  = "counters"
	surveys   = "surveys"
	sections  = "sections"
	questions = "questions"
	answers   = "answers"
	patients  = "patients"
	outcomes  = "outcomes"
	filters   = "filters"
	users     = "users"
	tokens    = "tokens"
)

type Store struct {
	client *driver.Client
	db     *driver.Database
}

var _ store.Store = (*Store)(nil)

// Open connects to uri and makes sure the collection indexes exist.
func Open(ctx context.Context, uri string) (*Store, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, errors.Wrap(err, "mongo.uri")
	}
	name := cs.Database
	if name == "" {
		name = DefaultDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := driver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo.connect")
	}
	if err = client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo.ping")
	}

	s := &Store{client: client, db: client.Database(name)}
	if err = s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	log.Debugf("mongo: using database %s", name)
	return s, nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Drop removes the whole database. Tests use it to clean up.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func(keys ...string) driver.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return driver.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
	}

	indexes := map[string][]driver.IndexModel{
		surveys:   {unique("code", "lang")},
		sections:  {unique("survey_id", "code")},
		questions: {unique("survey_id", "code")},
		answers:   {unique("question_id", "code")},
		outcomes: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "survey_id", Value: 1}, {Key: "at", Value: -1}}},
			{Keys: bson.D{{Key: "survey_code", Value: 1}}},
		},
		filters: {unique("survey_id", "question_id")},
		tokens:  {{Keys: bson.D{{Key: "username", Value: 1}, {Key: "token_id", Value: 1}}}},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "mongo.indexes.%s", coll)
		}
	}
	return nil
}

// nextID hands out sequential integer ids, one sequence per collection.
func (s *Store) nextID(ctx context.Context, coll string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(counters).FindOneAndUpdate(ctx,
		bson.M{"_id": coll},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	return doc.Seq, errors.Wrapf(err, "next_id.%s", coll)
}

// upsert updates the document matching key with fields, or inserts a new
// one with a fresh id, and returns its id. onInsert is only written when
// the document is created.
func (s *Store) upsert(ctx context.Context, coll string, key, fields, onInsert bson.D) (int64, error) {
	c := s.db.Collection(coll)

	var doc struct {
		ID int64 `bson:"_id"`
	}
	err := c.FindOneAndUpdate(ctx, key,
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1}),
	).Decode(&doc)
	if err == nil {
		return doc.ID, nil
	}
	if !errors.Is(err, driver.ErrNoDocuments) {
		return 0, errors.Wrapf(err, "upsert.%s", coll)
	}

	id, err := s.nextID(ctx, coll)
	if err != nil {
		return 0, err
	}
	insert := bson.D{{Key: "_id", Value: id}}
	insert = append(insert, key...)
	insert = append(insert, fields...)
	insert = append(insert, onInsert...)
	if _, err = c.InsertOne(ctx, insert); err != nil {
		return 0, classify(err, "upsert."+coll)
	}
	return id, nil
}

func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case driver.IsDuplicateKeyError(err):
		return errs.Duplicate("%s: %s", what, err)
	default:
		return errors.Wrap(err, what)
	}
}

func paging(page store.Paging) *options.FindOptions {
	return options.Find().
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))
}
