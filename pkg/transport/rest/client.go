// Package rest implements [transport.Transport] over the backend's REST
// endpoints.
//
// Single saves go to POST /classes/{class} (or PUT /classes/{class}/{id}
// for updates) and batches to POST /batch. Reads go through GET
// /classes/{class}/{id} and an optional [cache.Cache].
//
// Writes are not idempotent, so they are attempted once by default; a lost
// response to a retried create would store the object twice. Reads retry
// transient failures with backoff.
package rest

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/deepsave/pkg/buildinfo"
	"github.com/matzehuels/deepsave/pkg/cache"
	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/entity"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
	"github.com/matzehuels/deepsave/pkg/httputil"
	"github.com/matzehuels/deepsave/pkg/observability"
	"github.com/matzehuels/deepsave/pkg/transport"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL      string // e.g. http://localhost:1337/parse
	AppID        string
	RESTKey      string
	SessionToken string

	Timeout    time.Duration // per HTTP request, default 30s
	HTTPClient *http.Client  // overrides Timeout when set

	// WriteAttempts is how often a save is tried. Defaults to 1.
	WriteAttempts int
	// ReadPolicy controls retries for Fetch. Defaults to httputil.DefaultPolicy.
	ReadPolicy httputil.Policy

	Cache    cache.Cache // default: no caching
	CacheTTL time.Duration
	Keyer    cache.Keyer

	Logger *log.Logger
}

// Client talks to the REST endpoints.
type Client struct {
	base    *url.URL
	http    *http.Client
	headers map[string]string
	writes  httputil.Policy
	reads   httputil.Policy
	cache   cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	logger  *log.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, deerrors.New(deerrors.ErrCodeInvalidConfig, "base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, deerrors.New(deerrors.ErrCodeInvalidConfig, "invalid base url %q", cfg.BaseURL)
	}

	c := &Client{
		base:    base,
		http:    cfg.HTTPClient,
		headers: map[string]string{"User-Agent": buildinfo.UserAgent()},
		writes:  httputil.Policy{Attempts: max(cfg.WriteAttempts, 1), Delay: 500 * time.Millisecond},
		reads:   cfg.ReadPolicy,
		cache:   cfg.Cache,
		keyer:   cfg.Keyer,
		ttl:     cfg.CacheTTL,
		logger:  cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cmp.Or(cfg.Timeout, defaultTimeout)}
	}
	if c.reads.Attempts == 0 {
		c.reads = httputil.DefaultPolicy
	}
	if c.cache == nil {
		c.cache = cache.NewNullCache()
	}
	if c.keyer == nil {
		c.keyer = cache.NewDefaultKeyer()
		if cfg.AppID != "" {
			c.keyer = cache.NewScopedKeyer(c.keyer, "app:"+cfg.AppID+":")
		}
	}
	if c.ttl == 0 {
		c.ttl = cache.DefaultTTL
	}
	if c.logger == nil {
		c.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	for k, v := range map[string]string{
		HeaderAppID:        cfg.AppID,
		HeaderRESTKey:      cfg.RESTKey,
		HeaderSessionToken: cfg.SessionToken,
	} {
		if v != "" {
			c.headers[k] = v
		}
	}
	return c, nil
}

func (c *Client) classPath(class, id string) string {
	p := "/classes/" + url.PathEscape(class)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// SaveOne implements [transport.Transport].
func (c *Client) SaveOne(ctx context.Context, req transport.Request) (entity.Reference, error) {
	method := http.MethodPost
	if req.ObjectID != "" {
		method = http.MethodPut
	}

	var resp SaveResponse
	err := c.writes.Do(ctx, func() error {
		return c.do(ctx, method, c.classPath(req.Class, req.ObjectID), req.Body, &resp)
	})
	if err != nil {
		return entity.Reference{}, err
	}

	ref := entity.Reference{Class: req.Class, ID: cmp.Or(resp.ObjectID, req.ObjectID)}
	if ref.ID == "" {
		return entity.Reference{}, fmt.Errorf("save %s: response carries no objectId", req.Class)
	}
	if req.ObjectID != "" {
		c.invalidate(ctx, ref)
	}
	return ref, nil
}

// SaveMany implements [transport.Transport] with one POST /batch.
func (c *Client) SaveMany(ctx context.Context, class string, reqs []transport.Request) ([]transport.Result, error) {
	batch := BatchRequest{Requests: make([]BatchOp, len(reqs))}
	for i, r := range reqs {
		op := BatchOp{Method: http.MethodPost, Path: c.base.Path + c.classPath(class, r.ObjectID), Body: r.Body}
		if r.ObjectID != "" {
			op.Method = http.MethodPut
		}
		batch.Requests[i] = op
	}

	var items []BatchItem
	err := c.writes.Do(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/batch", batch, &items)
	})
	if err != nil {
		return nil, err
	}
	if len(items) != len(reqs) {
		return nil, fmt.Errorf("%w: got %d, want %d", transport.ErrMismatchedResults, len(items), len(reqs))
	}

	out := make([]transport.Result, len(items))
	for i, it := range items {
		switch {
		case it.Error != nil:
			out[i] = transport.Result{Err: it.Error}
		case it.Success != nil && cmp.Or(it.Success.ObjectID, reqs[i].ObjectID) != "":
			ref := entity.Reference{Class: class, ID: cmp.Or(it.Success.ObjectID, reqs[i].ObjectID)}
			if reqs[i].ObjectID != "" {
				c.invalidate(ctx, ref)
			}
			out[i] = transport.Result{Ref: ref}
		default:
			out[i] = transport.Result{Err: fmt.Errorf("batch item %d: empty result", i)}
		}
	}
	c.logger.Debug("batch saved", "class", class, "size", len(reqs))
	return out, nil
}

// Object is a fetched record with wire values decoded by [codec.Decode].
// System fields (objectId, createdAt, updatedAt) are included.
type Object map[string]any

// Fetch reads one object, consulting the cache first.
func (c *Client) Fetch(ctx context.Context, ref entity.Reference) (Object, error) {
	if ref.Class == "" || ref.ID == "" {
		return nil, deerrors.New(deerrors.ErrCodeInvalidInput, "reference needs class and id")
	}
	key := c.keyer.ObjectKey(ref)

	data, hit, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if hit {
		observability.Cache().OnCacheHit(ctx, "object")
	} else {
		observability.Cache().OnCacheMiss(ctx, "object")
		var raw json.RawMessage
		err := c.reads.Do(ctx, func() error {
			return c.do(ctx, http.MethodGet, c.classPath(ref.Class, ref.ID), nil, &raw)
		})
		if errors.Is(err, ErrNotFound) {
			return nil, deerrors.Wrap(deerrors.ErrCodeNotFound, err, "%s not found", ref)
		}
		if err != nil {
			return nil, err
		}
		data = raw
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "object", len(data))
		}
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, deerrors.Wrap(deerrors.ErrCodeInvalidJSON, err, "decode %s", ref)
	}
	decoded, _ := codec.Decode(obj).(map[string]any)
	return Object(decoded), nil
}

func (c *Client) invalidate(ctx context.Context, ref entity.Reference) {
	if err := c.cache.Delete(ctx, c.keyer.ObjectKey(ref)); err != nil {
		c.logger.Warn("cache invalidation failed", "ref", ref, "error", err)
	}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.reads.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/health", nil, nil)
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	u := c.base.JoinPath(path)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return deerrors.Wrap(deerrors.ErrCodeInvalidJSON, err, "encode %s %s", method, path)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, method, u.Host, u.Path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, method, u.Host, u.Path, err)
		if ctx.Err() != nil {
			return deerrors.Wrap(deerrors.ErrCodeTimeout, err, "%s %s", method, u.Path)
		}
		return &httputil.RetryableError{Err: deerrors.Wrap(deerrors.ErrCodeNetwork, err, "%s %s", method, u.Path)}
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, method, u.Host, u.Path, resp.StatusCode, time.Since(start))
	c.logger.Debug("http", "method", method, "path", u.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if err := httputil.CheckResponse(resp); err != nil {
		return apiError(err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return deerrors.Wrap(deerrors.ErrCodeInvalidJSON, err, "decode %s %s", method, u.Path)
	}
	return nil
}

// apiError upgrades a StatusError to an APIError when the body carries a
// {"code","error"} object, keeping the retryable marker.
func apiError(err error) error {
	var se *httputil.StatusError
	if !errors.As(err, &se) {
		return err
	}
	ae := &APIError{Status: se.StatusCode}
	if json.Unmarshal(se.Body, ae) != nil || ae.Message == "" {
		ae.Message = strings.TrimSpace(string(se.Body))
	}
	if se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden {
		return deerrors.Wrap(deerrors.ErrCodeUnauthorized, ae, "request rejected")
	}
	if httputil.IsRetryable(err) {
		return &httputil.RetryableError{Err: ae}
	}
	return ae
}

var _ transport.Transport = (*Client)(nil)
