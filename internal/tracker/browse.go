package tracker

import (
	"context"
	"time"

	"ct-go/internal/model"
)

// BrowseCache is the ephemeral mirror of the remote catalog. It is fully
// owned by the SyncOrchestrator and safe to drop and rebuild at any time;
// nothing in the ownership ledger depends on it.
type BrowseCache interface {
	// ReplaceAll reconciles the cache against one complete fetched snapshot
	// in a single transaction: every entity is upserted by uuid, every
	// previously cached entity absent from snap is deleted, and the last
	// sync timestamp is set to syncedAt. Readers never observe a partial
	// state; on error the previous cache content is untouched.
	ReplaceAll(ctx context.Context, snap model.CatalogSnapshot, syncedAt time.Time) error

	ListFamilies(ctx context.Context) ([]model.CatalogFamily, error)

	// ListCharacters returns the characters of one family, or of all
	// families when familyUUID is empty.
	ListCharacters(ctx context.Context, familyUUID string) ([]model.CatalogCharacter, error)

	ListVariants(ctx context.Context, characterUUID string) ([]model.CatalogVariant, error)

	// VariantContext resolves a cached variant together with its character
	// and family, the shape a picker selection carries. Returns nil if the
	// variant is not in the cache.
	VariantContext(ctx context.Context, variantUUID string) (*Selection, error)

	// LastSyncAt returns when the cache was last successfully rebuilt, or
	// the zero time if it never was.
	LastSyncAt(ctx context.Context) (time.Time, error)
}
