package testutil

import (
	"context"
	"sync"

	"ct-go/internal/tracker"
)

// StubImageCache records Cache and Delete calls without touching the
// filesystem. When Fail is set, Cache behaves like a download failure and
// returns nil paths.
type StubImageCache struct {
	mu sync.Mutex

	Fail      bool
	CacheKeys []string
	Deleted   []string
	DeleteErr error
}

var _ tracker.ImageCache = (*StubImageCache)(nil)

func NewStubImageCache() *StubImageCache {
	return &StubImageCache{}
}

func (c *StubImageCache) Cache(ctx context.Context, key, fullURL, thumbURL string) (fullPath, thumbPath *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CacheKeys = append(c.CacheKeys, key)
	if c.Fail {
		return nil, nil
	}
	if fullURL != "" {
		p := "/images/" + key + "/full.jpg"
		fullPath = &p
	}
	if thumbURL != "" {
		p := "/images/" + key + "/thumb.jpg"
		thumbPath = &p
	}
	return fullPath, thumbPath
}

func (c *StubImageCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted = append(c.Deleted, key)
	return c.DeleteErr
}
