package cacheclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// ErrMissingURL is returned when a fetch is requested without a URL.
var ErrMissingURL = errors.New("missing url")

// Service defines the interface for fetching resources through an HTTP cache.
type Service interface {
	// FetchWithCacheInfo performs a GET for u. When skipCache is true the
	// local cache is ignored and the request is forced to the network.
	// Transport errors are returned unchanged; HTTP status codes are not errors.
	FetchWithCacheInfo(ctx context.Context, u *url.URL, skipCache bool) (*Result, error)

	// Lookup returns the stored body for u without any network I/O.
	Lookup(u *url.URL) ([]byte, bool)
}

// Result is the outcome of a fetch.
type Result struct {
	// Body holds the full response body.
	Body []byte
	// Response carries the status and headers. Its body is already consumed.
	Response *http.Response
	// FromCache reports whether the response was satisfied by the local
	// cache store, including after a successful revalidation.
	FromCache bool
}
