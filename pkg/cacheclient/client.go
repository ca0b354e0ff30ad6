package cacheclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/sirupsen/logrus"
)

// Client implements Service on top of an RFC 7234 caching transport.
type Client struct {
	cache  httpcache.Cache
	http   *http.Client
	logger logrus.FieldLogger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    logrus.FieldLogger
}

// WithTransport sets the network transport used below the cache.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewClient creates a client whose transport reads and writes cache.
func NewClient(cache httpcache.Cache, opts ...Option) *Client {
	o := options{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = &observedTransport{next: o.transport}

	return &Client{
		cache: cache,
		http: &http.Client{
			Transport: transport,
			Timeout:   o.timeout,
		},
		logger: o.logger,
	}
}

// Cache returns the store shared by the transport and Lookup.
func (c *Client) Cache() httpcache.Cache {
	return c.cache
}

// FetchWithCacheInfo performs a GET for u and reports whether the response
// was served from the local cache.
func (c *Client) FetchWithCacheInfo(ctx context.Context, u *url.URL, skipCache bool) (*Result, error) {
	if u == nil || u.String() == "" {
		return nil, ErrMissingURL
	}

	obs := &cacheObserver{}
	req, err := http.NewRequestWithContext(withObserver(ctx, obs), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", u, err)
	}
	if skipCache {
		// Consult nothing stored, not even as a stale-if-error fallback.
		// The fresh response still replaces the entry.
		req.Header.Set("Cache-Control", "no-cache, stale-if-error=0")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Reading to EOF is what commits a fresh response to the cache.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	fromCache := obs.resolve(resp)
	c.logger.WithFields(logrus.Fields{
		"url":        u.String(),
		"status":     resp.StatusCode,
		"bytes":      len(body),
		"from_cache": fromCache,
		"skip_cache": skipCache,
	}).Debug("fetch completed")

	return &Result{
		Body:      body,
		Response:  resp,
		FromCache: fromCache,
	}, nil
}

// Lookup returns the stored body for u. Only successful responses count.
func (c *Client) Lookup(u *url.URL) ([]byte, bool) {
	if u == nil || u.String() == "" {
		return nil, false
	}

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false
	}

	resp, err := httpcache.CachedResponse(c.cache, req)
	if err != nil || resp == nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}
	return body, true
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
