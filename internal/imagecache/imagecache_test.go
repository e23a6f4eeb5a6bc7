package imagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"ct-go/internal/tracker"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "images"), 5*time.Second, tracker.NewNopLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestManager_Cache(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads both slots and returns their paths", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("image-bytes-for-" + r.URL.Path))
		}))
		defer srv.Close()

		m := newTestManager(t)
		full, thumb := m.Cache(ctx, "var-1", srv.URL+"/full.jpg", srv.URL+"/thumb.jpg")

		if full == nil || thumb == nil {
			t.Fatal("expected both paths, got nil")
		}
		for _, p := range []string{*full, *thumb} {
			if _, err := os.Stat(p); err != nil {
				t.Errorf("cached file missing: %v", err)
			}
		}
	})

	t.Run("is idempotent and does not re-download", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte("image"))
		}))
		defer srv.Close()

		m := newTestManager(t)
		first, _ := m.Cache(ctx, "var-1", srv.URL+"/full.jpg", "")
		second, _ := m.Cache(ctx, "var-1", srv.URL+"/full.jpg", "")

		if first == nil || second == nil {
			t.Fatal("expected paths")
		}
		if *first != *second {
			t.Errorf("paths differ: %q vs %q", *first, *second)
		}
		if hits.Load() != 1 {
			t.Errorf("server hit %d times, want 1", hits.Load())
		}
	})

	t.Run("empty urls yield nil paths without error", func(t *testing.T) {
		m := newTestManager(t)
		full, thumb := m.Cache(ctx, "var-1", "", "")
		if full != nil || thumb != nil {
			t.Error("expected nil paths for empty urls")
		}
	})

	t.Run("download failure degrades to nil", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusInternalServerError)
		}))
		defer srv.Close()

		m := newTestManager(t)
		full, thumb := m.Cache(ctx, "var-1", srv.URL+"/full.jpg", srv.URL+"/thumb.jpg")
		if full != nil || thumb != nil {
			t.Error("expected nil paths on download failure")
		}
	})

	t.Run("rejects path-traversal keys", func(t *testing.T) {
		m := newTestManager(t)
		for _, key := range []string{"", ".", "..", "a/b", "../escape"} {
			full, thumb := m.Cache(ctx, key, "http://irrelevant/full.jpg", "")
			if full != nil || thumb != nil {
				t.Errorf("key %q accepted", key)
			}
		}
	})
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes all cached files for a key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("image"))
		}))
		defer srv.Close()

		m := newTestManager(t)
		full, _ := m.Cache(ctx, "var-1", srv.URL+"/full.jpg", "")
		if full == nil {
			t.Fatal("cache failed")
		}

		if err := m.Delete("var-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := os.Stat(*full); !os.IsNotExist(err) {
			t.Error("cached file survived Delete")
		}
	})

	t.Run("deleting an uncached key is a no-op", func(t *testing.T) {
		m := newTestManager(t)
		if err := m.Delete("never-cached"); err != nil {
			t.Errorf("Delete() error = %v", err)
		}
	})
}
