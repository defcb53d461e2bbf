// Package redis stores objects in Redis, one JSON value per object.
//
// Keys have the form {prefix}:obj:{class}:{id}. Batch inserts are sent as
// one pipeline of SET NX commands, so every item gets its own reply.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/deepsave/pkg/store"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "deepsave"

// ErrIDCollision is returned when a generated object ID is already taken.
var ErrIDCollision = errors.New("object id already exists")

// Config configures the connection.
type Config struct {
	Addr     string // host:port, default localhost:6379
	Password string
	DB       int
	Prefix   string // default DefaultPrefix
}

// Store is a Redis-backed [store.Store].
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewFromClient(client, cfg.Prefix), nil
}

// NewFromClient wraps an existing client. Close closes the client.
func NewFromClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(class, id string) string {
	return fmt.Sprintf("%s:obj:%s:%s", s.prefix, class, id)
}

func newRecord(class string, doc store.Document) store.Record {
	now := store.Now()
	return store.Record{Class: class, ID: store.NewObjectID(), CreatedAt: now, UpdatedAt: now, Data: doc}
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, class string, doc store.Document) (store.Record, error) {
	rec := newRecord(class, doc)
	data, err := json.Marshal(rec)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s: %w", class, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(class, rec.ID), data, 0).Result()
	if err != nil {
		return store.Record{}, err
	}
	if !ok {
		return store.Record{}, ErrIDCollision
	}
	return rec, nil
}

// CreateMany implements [store.Store].
func (s *Store) CreateMany(ctx context.Context, class string, docs []store.Document) ([]store.Result, error) {
	results := make([]store.Result, len(docs))
	cmds := make([]*redis.BoolCmd, len(docs))

	pipe := s.client.Pipeline()
	for i, doc := range docs {
		rec := newRecord(class, doc)
		data, err := json.Marshal(rec)
		if err != nil {
			results[i].Err = fmt.Errorf("marshal %s: %w", class, err)
			continue
		}
		results[i].Record = rec
		cmds[i] = pipe.SetNX(ctx, s.key(class, rec.ID), data, 0)
	}
	if pipe.Len() == 0 {
		return results, nil
	}

	if _, err := pipe.Exec(ctx); err != nil && !isReplyError(err) {
		return nil, err
	}
	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		ok, err := cmd.Result()
		switch {
		case err != nil:
			results[i] = store.Result{Err: err}
		case !ok:
			results[i] = store.Result{Err: ErrIDCollision}
		}
	}
	return results, nil
}

// isReplyError reports whether err came from the server for one command
// rather than from the connection.
func isReplyError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}

// Update implements [store.Store].
func (s *Store) Update(ctx context.Context, class, id string, doc store.Document) (store.Record, error) {
	rec, err := s.Get(ctx, class, id)
	if err != nil {
		return store.Record{}, err
	}
	rec.Data = doc
	rec.UpdatedAt = store.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s: %w", class, err)
	}
	err = s.client.SetArgs(ctx, s.key(class, id), data, redis.SetArgs{Mode: "XX"}).Err()
	if errors.Is(err, redis.Nil) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, class, id string) (store.Record, error) {
	data, err := s.client.Get(ctx, s.key(class, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return store.Record{}, fmt.Errorf("unmarshal %s/%s: %w", class, id, err)
	}
	return rec, nil
}

// Close implements [store.Store].
func (s *Store) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

var _ store.Store = (*Store)(nil)
