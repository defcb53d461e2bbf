// Package config loads deepsave settings from a TOML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the config file,
// DEEPSAVE_* environment variables, then command-line flags (applied by
// the caller). A missing file at the default location is not an error.
//
//	[client]
//	server_url = "http://localhost:1337/parse"
//	app_id = "myapp"
//	timeout = "30s"
//
//	[store]
//	backend = "sqlite"
//	sqlite_path = "deepsave.db"
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	deerrors "github.com/matzehuels/deepsave/pkg/errors"
)

// Store and cache backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendFile   = "file"
	BackendNone   = "none"
)

// Duration is a time.Duration written as "30s" or "5m" in TOML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Config is the full configuration.
type Config struct {
	Client ClientConfig `toml:"client"`
	Save   SaveConfig   `toml:"save"`
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Cache  CacheConfig  `toml:"cache"`
}

// ClientConfig configures the REST transport.
type ClientConfig struct {
	ServerURL     string   `toml:"server_url"`
	AppID         string   `toml:"app_id"`
	RESTKey       string   `toml:"rest_key"`
	SessionToken  string   `toml:"session_token"`
	Timeout       Duration `toml:"timeout"`
	WriteAttempts int      `toml:"write_attempts"`
}

// SaveConfig configures the save engine.
type SaveConfig struct {
	BatchLimit int `toml:"batch_limit"`
}

// ServerConfig configures the reference backend.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	MountPath string `toml:"mount_path"`
	AppID     string `toml:"app_id"`
	MaxBatch  int    `toml:"max_batch"`
}

// StoreConfig selects and configures the persistence backend used by the
// server and by direct saves.
type StoreConfig struct {
	Backend       string `toml:"backend"`
	SQLitePath    string `toml:"sqlite_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// CacheConfig configures read caching for fetches.
type CacheConfig struct {
	Backend   string   `toml:"backend"`
	Dir       string   `toml:"dir"`
	TTL       Duration `toml:"ttl"`
	RedisAddr string   `toml:"redis_addr"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Client.Timeout.Duration == 0 {
		c.Client.Timeout.Duration = 30 * time.Second
	}
	if c.Client.WriteAttempts == 0 {
		c.Client.WriteAttempts = 1
	}
	if c.Save.BatchLimit == 0 {
		c.Save.BatchLimit = 50
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":1337"
	}
	if c.Server.MountPath == "" {
		c.Server.MountPath = "/parse"
	}
	if c.Server.MaxBatch == 0 {
		c.Server.MaxBatch = 50
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "deepsave.db"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = "deepsave"
	}
	if c.Store.MongoURI == "" {
		c.Store.MongoURI = "mongodb://localhost:27017"
	}
	if c.Store.MongoDatabase == "" {
		c.Store.MongoDatabase = "deepsave"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Cache.TTL.Duration == 0 {
		c.Cache.TTL.Duration = 10 * time.Minute
	}
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = c.Store.RedisAddr
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Client.ServerURL != "" {
		u, err := url.Parse(c.Client.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("client.server_url %q is not an absolute URL", c.Client.ServerURL)
		}
	}
	if c.Client.WriteAttempts < 1 {
		return invalid("client.write_attempts must be at least 1")
	}
	if c.Save.BatchLimit < 1 {
		return invalid("save.batch_limit must be at least 1")
	}
	if c.Server.MaxBatch < 1 {
		return invalid("server.max_batch must be at least 1")
	}
	if !slices.Contains([]string{BackendMemory, BackendSQLite, BackendRedis, BackendMongo}, c.Store.Backend) {
		return invalid("store.backend %q: want memory, sqlite, redis or mongo", c.Store.Backend)
	}
	if !slices.Contains([]string{BackendFile, BackendRedis, BackendNone}, c.Cache.Backend) {
		return invalid("cache.backend %q: want file, redis or none", c.Cache.Backend)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return deerrors.New(deerrors.ErrCodeInvalidConfig, format, args...)
}

// DefaultPath returns $XDG_CONFIG_HOME/deepsave/config.toml (or the
// platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deepsave", "config.toml"), nil
}

// Load reads the file at path, applies the environment and defaults, and
// validates the result. An empty path means [DefaultPath], which may be
// absent.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, deerrors.Wrap(deerrors.ErrCodeInvalidConfig, err, "read %s", path)
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Parse decodes TOML from r without touching the environment.
func Parse(r io.Reader) (Config, error) {
	var c Config
	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return Config{}, deerrors.Wrap(deerrors.ErrCodeInvalidConfig, err, "parse config")
	}
	c.SetDefaults()
	return c, c.Validate()
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ApplyEnv overrides fields from DEEPSAVE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DEEPSAVE_SERVER_URL":     &c.Client.ServerURL,
		"DEEPSAVE_APP_ID":         &c.Client.AppID,
		"DEEPSAVE_REST_KEY":       &c.Client.RESTKey,
		"DEEPSAVE_SESSION_TOKEN":  &c.Client.SessionToken,
		"DEEPSAVE_ADDR":           &c.Server.Addr,
		"DEEPSAVE_STORE":          &c.Store.Backend,
		"DEEPSAVE_SQLITE_PATH":    &c.Store.SQLitePath,
		"DEEPSAVE_REDIS_ADDR":     &c.Store.RedisAddr,
		"DEEPSAVE_REDIS_PASSWORD": &c.Store.RedisPassword,
		"DEEPSAVE_MONGO_URI":      &c.Store.MongoURI,
		"DEEPSAVE_CACHE":          &c.Cache.Backend,
		"DEEPSAVE_CACHE_DIR":      &c.Cache.Dir,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEEPSAVE_BATCH_LIMIT":    &c.Save.BatchLimit,
		"DEEPSAVE_WRITE_ATTEMPTS": &c.Client.WriteAttempts,
	}
	for name, dst := range ints {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalid("%s=%q: %v", name, v, err)
		}
		*dst = n
	}

	if v, ok := lookup("DEEPSAVE_TIMEOUT"); ok {
		if err := c.Client.Timeout.UnmarshalText([]byte(v)); err != nil {
			return invalid("DEEPSAVE_TIMEOUT=%q: %v", v, err)
		}
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("store=%s cache=%s server=%s", c.Store.Backend, c.Cache.Backend, c.Client.ServerURL)
}
