package tracker

import (
	"context"

	"ct-go/internal/model"
)

// CatalogClient fetches catalog listings and barcode lookups from the remote
// service. Implementations classify failures: timeouts, connectivity loss
// and remote 5xx surface as *TransientError; a barcode or id that matches
// nothing surfaces as ErrNotFound.
type CatalogClient interface {
	ListFamilies(ctx context.Context) ([]model.CatalogFamily, error)
	ListCharacters(ctx context.Context, familyUUID string) ([]model.CatalogCharacter, error)
	ListVariants(ctx context.Context, characterUUID string) ([]model.CatalogVariant, error)

	// LookupBarcode resolves a scanned barcode to a self-contained
	// variant+character+family bundle.
	LookupBarcode(ctx context.Context, code string) (*model.VariantBundle, error)
}
