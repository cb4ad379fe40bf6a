package cachesvc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/alumni/core"
)

type memoryEntry struct {
	page    []byte
	expires time.Time
}

// MemoryCache is the page cache of a single instance deployment. It also records the revalidated paths.
type MemoryCache struct {
	ttl time.Duration

	mu          sync.Mutex
	pages       map[string]memoryEntry
	revalidated []string
}

var _ core.PageCache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, pages: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, path, variant string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey(path, variant)
	entry, ok := c.pages[key]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && time.Now().After(entry.expires) {
		delete(c.pages, key)
		return nil, false, nil
	}
	return entry.page, true, nil
}

func (c *MemoryCache) Set(_ context.Context, path, variant string, page []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[pageKey(path, variant)] = memoryEntry{page: page, expires: time.Now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Revalidate(_ context.Context, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, path := range paths {
		prefix := pageKey(path, "")
		for key := range c.pages {
			if strings.HasPrefix(key, prefix) {
				delete(c.pages, key)
			}
		}
		c.revalidated = append(c.revalidated, path)
	}
	return nil
}

// Revalidated returns the paths revalidated so far, in order.
func (c *MemoryCache) Revalidated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.revalidated...)
}

func (c *MemoryCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = make(map[string]memoryEntry)
	c.revalidated = nil
}
