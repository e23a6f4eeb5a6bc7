package tracker

import "context"

// ImageCache stores local copies of variant images, addressed by ownership
// key (the variant uuid). Caching is strictly best-effort: a failed download
// or disk write degrades to "no local copy" and must never block or abort
// the ledger write that follows it.
type ImageCache interface {
	// Cache ensures local copies of the full image and thumbnail for key,
	// downloading them if needed. It is idempotent per key: existing files
	// are returned without re-downloading. A nil slot in the result means
	// no local copy exists for it, whether because the URL was empty or
	// because the download failed.
	Cache(ctx context.Context, key, fullURL, thumbURL string) (fullPath, thumbPath *string)

	// Delete removes any cached files for key. Deleting a key with no
	// cached files is a no-op.
	Delete(key string) error
}
