package kvstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDocument struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

// MongoStore keeps entries as documents in one collection. Expired documents
// are removed by a TTL index and filtered out on read.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and prepares the "kv" collection in database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	collection := client.Database(database).Collection("kv")
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, collection: collection}, nil
}

func liveFilter(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"expires_at": bson.M{"$exists": false}},
		bson.M{"expires_at": nil},
		bson.M{"expires_at": bson.M{"$gt": now}},
	}}
}

func (m *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	filter := bson.M{"$and": bson.A{bson.M{"_id": key}, liveFilter(time.Now())}}
	var doc mongoDocument
	if err := m.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.Value, nil
}

func (m *MongoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	doc := mongoDocument{Key: key, Value: value, UpdatedAt: now}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		doc.ExpiresAt = &expiresAt
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) Delete(ctx context.Context, key string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (m *MongoStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	filter := bson.M{"$and": bson.A{
		bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}},
		liveFilter(time.Now()),
	}}
	cursor, err := m.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := make([]Entry, 0)
	for cursor.Next(ctx) {
		var doc mongoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: doc.Key, Value: doc.Value})
	}
	return entries, cursor.Err()
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
