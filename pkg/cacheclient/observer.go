package cacheclient

import (
	"context"
	"net/http"
	"sync/atomic"
)

const (
	sourceUnset int32 = iota
	sourceCache
	sourceNetwork
)

type observerKey struct{}

// cacheObserver records the network transactions of one fetch. The transport
// may update it from any goroutine while the caller waits for the response.
type cacheObserver struct {
	transactions atomic.Int32
	answered     atomic.Bool
	last         atomic.Pointer[http.Response]
	source       atomic.Int32
}

func withObserver(ctx context.Context, o *cacheObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, o)
}

func observerFrom(ctx context.Context) *cacheObserver {
	o, _ := ctx.Value(observerKey{}).(*cacheObserver)
	return o
}

func (o *cacheObserver) observe(resp *http.Response) {
	o.transactions.Add(1)
	if resp == nil {
		return
	}
	o.last.Store(resp)
	// 304 confirms the stored copy and 5xx lets a stale one through; any other
	// answer, a redirect hop included, means the origin served this fetch.
	if resp.StatusCode != http.StatusNotModified && resp.StatusCode < http.StatusInternalServerError {
		o.answered.Store(true)
	}
}

// resolve fixes the source of final exactly once and reports whether it came
// from the cache: a fresh hit, a 304 revalidation or a stale-if-error, with no
// other hop of the request chain answered by the origin.
func (o *cacheObserver) resolve(final *http.Response) bool {
	source := sourceCache
	if o.transactions.Load() > 0 && (o.last.Load() == final || o.answered.Load()) {
		source = sourceNetwork
	}
	o.source.CompareAndSwap(sourceUnset, source)
	return o.source.Load() == sourceCache
}

// observedTransport sits below the cache layer, so it only sees requests
// that actually go out to the network.
type observedTransport struct {
	next http.RoundTripper
}

func (t *observedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if o := observerFrom(req.Context()); o != nil {
		o.observe(resp)
	}
	return resp, err
}
