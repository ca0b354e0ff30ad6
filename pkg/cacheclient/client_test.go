package cacheclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type origin struct {
	hits atomic.Int32
	srv  *httptest.Server
}

func newOrigin(t *testing.T, handler http.HandlerFunc) *origin {
	t.Helper()
	o := &origin{}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *origin) url(t *testing.T, path string) *url.URL {
	t.Helper()
	u, err := url.Parse(o.srv.URL + path)
	require.NoError(t, err)
	return u
}

func TestClient_FetchWithCacheInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh response is served from cache on repeat", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "max-age=3600")
			w.Write([]byte("payload"))
		})
		c := NewClient(NewMemoryCache())

		first, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), false)
		require.NoError(t, err)
		assert.False(t, first.FromCache)
		assert.Equal(t, "payload", string(first.Body))

		second, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), false)
		require.NoError(t, err)
		assert.True(t, second.FromCache)
		assert.Equal(t, "payload", string(second.Body))
		assert.EqualValues(t, 1, o.hits.Load())
	})

	t.Run("skip cache forces the network", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "max-age=3600")
			w.Write([]byte("payload"))
		})
		c := NewClient(NewMemoryCache())

		_, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), false)
		require.NoError(t, err)

		res, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), true)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		assert.EqualValues(t, 2, o.hits.Load())
	})

	t.Run("skip cache never falls back to a stale entry", func(t *testing.T) {
		var broken atomic.Bool
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			if broken.Load() {
				http.Error(w, "down", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Cache-Control", "max-age=0, stale-if-error=3600")
			w.Write([]byte("old"))
		})
		c := NewClient(NewMemoryCache())

		_, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), false)
		require.NoError(t, err)
		broken.Store(true)

		res, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), true)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, res.Response.StatusCode)
		assert.NotEqual(t, "old", string(res.Body))
		assert.False(t, res.FromCache)
	})

	t.Run("redirect over the network is not a cache hit", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/moved" {
				http.Redirect(w, r, "/img", http.StatusFound)
				return
			}
			w.Header().Set("Cache-Control", "max-age=3600")
			w.Write([]byte("payload"))
		})
		c := NewClient(NewMemoryCache())

		_, err := c.FetchWithCacheInfo(ctx, o.url(t, "/img"), false)
		require.NoError(t, err)

		res, err := c.FetchWithCacheInfo(ctx, o.url(t, "/moved"), false)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(res.Body))
		assert.False(t, res.FromCache)
		assert.EqualValues(t, 2, o.hits.Load())
	})

	t.Run("revalidated response counts as cached", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Cache-Control", "no-cache")
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Write([]byte("payload"))
		})
		c := NewClient(NewMemoryCache())

		first, err := c.FetchWithCacheInfo(ctx, o.url(t, "/etag"), false)
		require.NoError(t, err)
		assert.False(t, first.FromCache)

		second, err := c.FetchWithCacheInfo(ctx, o.url(t, "/etag"), false)
		require.NoError(t, err)
		assert.True(t, second.FromCache)
		assert.Equal(t, http.StatusOK, second.Response.StatusCode)
		assert.Equal(t, "payload", string(second.Body))
		assert.EqualValues(t, 2, o.hits.Load())
	})

	t.Run("status codes are not errors", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		c := NewClient(NewMemoryCache())

		res, err := c.FetchWithCacheInfo(ctx, o.url(t, "/missing"), false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, res.Response.StatusCode)
		assert.False(t, res.FromCache)
	})

	t.Run("missing url", func(t *testing.T) {
		c := NewClient(NewMemoryCache())

		_, err := c.FetchWithCacheInfo(ctx, nil, false)
		assert.ErrorIs(t, err, ErrMissingURL)
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("payload"))
		})
		c := NewClient(NewMemoryCache())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.FetchWithCacheInfo(cctx, o.url(t, "/a"), false)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("transport error propagates", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {})
		u := o.url(t, "/gone")
		o.srv.Close()

		_, err := NewClient(NewMemoryCache()).FetchWithCacheInfo(ctx, u, false)
		assert.Error(t, err)
	})

	t.Run("custom network transport sits below the cache", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "max-age=3600")
			w.Write([]byte("payload"))
		})
		var calls atomic.Int32
		rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			calls.Add(1)
			return http.DefaultTransport.RoundTrip(req)
		})
		c := NewClient(NewMemoryCache(), WithTransport(rt))

		for i := 0; i < 3; i++ {
			_, err := c.FetchWithCacheInfo(ctx, o.url(t, "/a"), false)
			require.NoError(t, err)
		}
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestClient_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("payload"))
		})
		c := NewClient(NewMemoryCache())
		u := o.url(t, "/a")

		_, ok := c.Lookup(u)
		assert.False(t, ok)

		_, err := c.FetchWithCacheInfo(ctx, u, false)
		require.NoError(t, err)

		body, ok := c.Lookup(u)
		assert.True(t, ok)
		assert.Equal(t, "payload", string(body))
		assert.EqualValues(t, 1, o.hits.Load())
	})

	t.Run("error responses are not usable", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		c := NewClient(NewMemoryCache())
		u := o.url(t, "/err")

		_, err := c.FetchWithCacheInfo(ctx, u, false)
		require.NoError(t, err)

		_, ok := c.Lookup(u)
		assert.False(t, ok)
	})

	t.Run("nil url", func(t *testing.T) {
		_, ok := NewClient(NewMemoryCache()).Lookup(nil)
		assert.False(t, ok)
	})
}

func TestDiskCache_SharedAcrossClients(t *testing.T) {
	o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	})
	dir := t.TempDir()
	u := o.url(t, "/a")

	cache, err := NewDiskCache(dir)
	require.NoError(t, err)
	_, err = NewClient(cache).FetchWithCacheInfo(context.Background(), u, false)
	require.NoError(t, err)

	reopened, err := NewDiskCache(dir)
	require.NoError(t, err)
	body, ok := NewClient(reopened).Lookup(u)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(body))

	require.NoError(t, RemoveDiskCache(dir))
	emptied, err := NewDiskCache(dir)
	require.NoError(t, err)
	_, ok = NewClient(emptied).Lookup(u)
	assert.False(t, ok)
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestCacheObserver_ResolvesOnce(t *testing.T) {
	o := &cacheObserver{}
	network := &http.Response{StatusCode: http.StatusOK}
	o.observe(network)

	assert.False(t, o.resolve(network))
	// A later resolution cannot flip the recorded source.
	assert.False(t, o.resolve(&http.Response{StatusCode: http.StatusOK}))
}

func TestCacheObserver_HopStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		fromCache bool
	}{
		{name: "revalidated", status: http.StatusNotModified, fromCache: true},
		{name: "stale on server error", status: http.StatusBadGateway, fromCache: true},
		{name: "redirect hop", status: http.StatusFound, fromCache: false},
		{name: "origin answered", status: http.StatusOK, fromCache: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &cacheObserver{}
			o.observe(&http.Response{StatusCode: tt.status})

			// The final response is a different object, built from the store.
			assert.Equal(t, tt.fromCache, o.resolve(&http.Response{StatusCode: http.StatusOK}))
		})
	}
}

func TestCacheObserver_NoTransaction(t *testing.T) {
	o := &cacheObserver{}
	assert.True(t, o.resolve(&http.Response{StatusCode: http.StatusOK}))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
