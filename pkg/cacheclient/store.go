package cacheclient

import (
	"fmt"
	"os"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the process-wide client backed by an in-memory cache.
// Callers resolve it themselves and hand it to whatever needs a Service.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = NewClient(NewMemoryCache())
	})
	return defaultClient
}

// NewMemoryCache creates an in-memory response store.
func NewMemoryCache() httpcache.Cache {
	return httpcache.NewMemoryCache()
}

// NewDiskCache creates a response store rooted at dir.
func NewDiskCache(dir string) (httpcache.Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return diskcache.New(dir), nil
}

// RemoveDiskCache deletes every entry stored under dir.
func RemoveDiskCache(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove cache directory: %w", err)
	}
	return nil
}
