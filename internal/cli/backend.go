package cli

import (
	"cmp"
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matzehuels/deepsave/pkg/cache"
	"github.com/matzehuels/deepsave/pkg/config"
	"github.com/matzehuels/deepsave/pkg/store"
	"github.com/matzehuels/deepsave/pkg/store/memory"
	"github.com/matzehuels/deepsave/pkg/store/mongo"
	"github.com/matzehuels/deepsave/pkg/store/redis"
	"github.com/matzehuels/deepsave/pkg/store/sqlite"
	"github.com/matzehuels/deepsave/pkg/transport"
	"github.com/matzehuels/deepsave/pkg/transport/rest"
)

// openStore opens the configured persistence backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.BackendRedis:
		return redis.New(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case config.BackendMongo:
		return mongo.New(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// openCache opens the fetch cache. noCache forces a null cache.
func openCache(cfg config.CacheConfig, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch cfg.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return cache.NewRedisCache(client, appName+":cache:"), nil
	default:
		dir := cfg.Dir
		if dir == "" {
			d, err := cache.DefaultDir()
			if err != nil {
				return cache.NewNullCache(), nil
			}
			dir = d
		}
		return cache.NewFileCache(dir)
	}
}

// newClient builds a REST client from the config. serverURL overrides
// client.server_url when set.
func (c *CLI) newClient(serverURL string, ch cache.Cache) (*rest.Client, error) {
	cc := c.cfg.Client
	if serverURL != "" {
		cc.ServerURL = serverURL
	}
	if cc.ServerURL == "" {
		return nil, fmt.Errorf("no server configured: pass --server or set client.server_url")
	}
	return rest.New(rest.Config{
		BaseURL:       cc.ServerURL,
		AppID:         cc.AppID,
		RESTKey:       cc.RESTKey,
		SessionToken:  cc.SessionToken,
		Timeout:       cc.Timeout.Duration,
		WriteAttempts: cc.WriteAttempts,
		Cache:         ch,
		CacheTTL:      c.cfg.Cache.TTL.Duration,
		Logger:        c.Logger,
	})
}

// newTransport returns the REST transport when a server is configured and
// a direct store transport otherwise. The returned func releases it.
func (c *CLI) newTransport(ctx context.Context, serverURL string) (transport.Transport, string, func(), error) {
	if serverURL != "" || c.cfg.Client.ServerURL != "" {
		client, err := c.newClient(serverURL, cache.NewNullCache())
		if err != nil {
			return nil, "", nil, err
		}
		return client, cmp.Or(serverURL, c.cfg.Client.ServerURL), func() {}, nil
	}

	st, err := openStore(ctx, c.cfg.Store)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open %s store: %w", c.cfg.Store.Backend, err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			c.Logger.Warn("close store", "error", err)
		}
	}
	return transport.Direct(st), c.cfg.Store.Backend + " store", closeStore, nil
}
