// Package imagecache stores local copies of variant images, one directory
// per ownership key.
package imagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ct-go/internal/tracker"
)

const (
	fullFile  = "full.jpg"
	thumbFile = "thumb.jpg"
)

// Manager is a filesystem image cache addressed by ownership key. Each key
// owns one directory holding at most a full image and a thumbnail, so keys
// can never collide:
//
//	<root>/
//	  <key>/
//	    full.jpg
//	    thumb.jpg
//
// Every failure inside Cache is absorbed: the caller gets a nil slot and the
// ownership write that follows proceeds with the remote URL only.
type Manager struct {
	root       string
	httpClient *http.Client
	logger     tracker.Logger
}

// NewManager creates a Manager rooted at the given directory.
func NewManager(root string, timeout time.Duration, logger tracker.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating image cache root: %w", err)
	}
	return &Manager{
		root:       root,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Cache ensures local copies of both images for key. Idempotent: slots that
// already exist on disk are returned without re-downloading. A nil slot
// means no local copy, whether the URL was empty or the attempt failed.
// There is exactly one download attempt per missing slot per call.
func (m *Manager) Cache(ctx context.Context, key, fullURL, thumbURL string) (fullPath, thumbPath *string) {
	if !validKey(key) {
		m.logger.Warn("refusing to cache images for unsafe key", "key", key)
		return nil, nil
	}

	fullPath = m.cacheOne(ctx, key, fullFile, fullURL)
	thumbPath = m.cacheOne(ctx, key, thumbFile, thumbURL)
	return fullPath, thumbPath
}

// cacheOne handles a single slot, returning nil on any failure.
func (m *Manager) cacheOne(ctx context.Context, key, name, srcURL string) *string {
	if srcURL == "" {
		return nil
	}

	dest := filepath.Join(m.root, key, name)
	if _, err := os.Stat(dest); err == nil {
		return &dest
	}

	if err := m.download(ctx, srcURL, dest); err != nil {
		m.logger.Warn("image download failed, record degrades to remote URL",
			"key", key, "url", srcURL, "error", err)
		return nil
	}

	m.logger.Debug("image cached", "key", key, "path", dest)
	return &dest
}

// download fetches srcURL into dest via a temp file + rename, so a partial
// download never becomes visible as a cached image.
func (m *Manager) download(ctx context.Context, srcURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing image data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Delete removes the key's directory and everything in it.
// Deleting a key with no cached files is a no-op.
func (m *Manager) Delete(key string) error {
	if !validKey(key) {
		return fmt.Errorf("unsafe image cache key: %q", key)
	}
	if err := os.RemoveAll(filepath.Join(m.root, key)); err != nil {
		return fmt.Errorf("deleting cached images for %s: %w", key, err)
	}
	return nil
}

// validKey rejects keys that could escape the cache root.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

// Compile-time check that Manager implements the core image cache interface.
var _ tracker.ImageCache = (*Manager)(nil)
