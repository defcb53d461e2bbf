// Package mongo stores objects in MongoDB, one collection per class.
//
// Documents look like:
//
//	{_id: "<objectId>", _created_at: ISODate, _updated_at: ISODate, data: {...}}
//
// Batch inserts use an unordered InsertMany so that a failing document does
// not stop the rest; per-document failures are read back from the bulk
// write exception.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/deepsave/pkg/store"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "deepsave"

// Config configures the connection.
type Config struct {
	URI      string // default mongodb://localhost:27017
	Database string
}

// Store is a MongoDB-backed [store.Store].
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

type document struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"_created_at"`
	UpdatedAt time.Time `bson:"_updated_at"`
	Data      bson.M    `bson:"data"`
}

func (d document) record(class string) store.Record {
	return store.Record{
		Class:     class,
		ID:        d.ID,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Data:      store.Document(normalizeMap(d.Data)),
	}
}

func newDocument(doc store.Document) document {
	now := store.Now()
	return document{ID: store.NewObjectID(), CreatedAt: now, UpdatedAt: now, Data: bson.M(doc)}
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, class string, doc store.Document) (store.Record, error) {
	d := newDocument(doc)
	if _, err := s.db.Collection(class).InsertOne(ctx, d); err != nil {
		return store.Record{}, err
	}
	return store.Record{Class: class, ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, Data: doc}, nil
}

// CreateMany implements [store.Store].
func (s *Store) CreateMany(ctx context.Context, class string, docs []store.Document) ([]store.Result, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	results := make([]store.Result, len(docs))
	batch := make([]any, len(docs))
	for i, doc := range docs {
		d := newDocument(doc)
		batch[i] = d
		results[i].Record = store.Record{Class: class, ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, Data: doc}
	}

	_, err := s.db.Collection(class).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		return results, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return nil, err
	}
	for _, we := range bwe.WriteErrors {
		if we.Index < 0 || we.Index >= len(results) {
			continue
		}
		results[we.Index] = store.Result{Err: fmt.Errorf("mongo write error %d: %s", we.Code, we.Message)}
	}
	return results, nil
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, class, id string, doc store.Document) (store.Record, error) {
	update := bson.M{"$set": bson.M{"data": bson.M(doc), "_updated_at": store.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d document
	err := s.db.Collection(class).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	return d.record(class), nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, class, id string) (store.Record, error) {
	var d document
	err := s.db.Collection(class).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	return d.record(class), nil
}

// Close implements [store.Store].
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// normalizeMap converts decoded BSON values back to plain Go maps, slices
// and times so callers see the same shapes the other stores return.
func normalizeMap(m bson.M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case bson.M:
		return normalizeMap(x)
	case bson.D:
		return normalizeMap(x.Map())
	case bson.A:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = normalize(el)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Binary:
		return x.Data
	case int32:
		return int64(x)
	default:
		return v
	}
}

var _ store.Store = (*Store)(nil)
