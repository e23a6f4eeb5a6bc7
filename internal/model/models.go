package model

import "time"

// CatalogFamily is a critter family as mirrored from the remote catalog.
// Rows in the browse cache are fully owned by catalog sync: every field may
// be rewritten or the row deleted on any pass.
type CatalogFamily struct {
	UUID        string // Catalog identifier
	Name        string
	Series      string // Product line the family belongs to
	FigureCount int    // Number of characters the catalog lists
	LastSynced  time.Time
}

// CatalogCharacter is a base collectible template, independent of any
// specific product release.
type CatalogCharacter struct {
	UUID         string
	FamilyUUID   string // Catalog foreign key (cache-internal only)
	Name         string
	Role         string // Family role, e.g. "mother", "baby"
	Species      string
	VariantCount int
	LastSynced   time.Time
}

// CatalogVariant is a purchasable product release of a character.
type CatalogVariant struct {
	UUID          string
	CharacterUUID string
	Name          string
	SetName       string // Boxed set the release shipped in, if any
	Epoch         string // Release batch label
	SKU           string
	Barcode       string
	ReleaseYear   int
	ImageURL      string
	ThumbnailURL  string
	LastSynced    time.Time
}

// CatalogSnapshot is one complete catalog listing as fetched from the remote
// service. The browse cache is replaced wholesale to mirror it.
type CatalogSnapshot struct {
	Families   []CatalogFamily
	Characters []CatalogCharacter
	Variants   []CatalogVariant
}

// VariantBundle is a self-contained barcode lookup result: the variant plus
// its character and family context in one payload.
type VariantBundle struct {
	Family    CatalogFamily
	Character CatalogCharacter
	Variant   CatalogVariant
}

// OwnershipStatus is the user's relationship to a variant.
type OwnershipStatus string

const (
	StatusCollection OwnershipStatus = "collection"
	StatusWishlist   OwnershipStatus = "wishlist"
)

// Valid reports whether s is one of the two known statuses.
func (s OwnershipStatus) Valid() bool {
	return s == StatusCollection || s == StatusWishlist
}

// OwnershipRecord is a permanent ledger row, keyed by VariantUUID.
// Names and identifiers are denormalized copies so a browse cache wipe never
// orphans ownership data.
type OwnershipRecord struct {
	VariantUUID   string // Primary key, unique across the ledger
	VariantName   string
	CharacterUUID string
	CharacterName string
	FamilyUUID    string
	FamilyName    string

	Status  OwnershipStatus
	SetName string
	Epoch   string

	ImageURL           string // Remote reference, kept for retry
	ThumbnailURL       string
	LocalImagePath     *string // nil means "not cached"
	LocalThumbnailPath *string

	// AddedDate is stamped when the record is created and re-stamped once on
	// the first transition into collection, tracked via EverCollected. It
	// never changes after that.
	AddedDate     time.Time
	EverCollected bool

	Details   CollectorDetails
	UpdatedAt time.Time
}

// CollectorDetails is free-form collector metadata on an owned variant.
type CollectorDetails struct {
	Price            *float64
	PurchaseDate     *time.Time
	PurchaseLocation *string
	Condition        *string
	Notes            *string
	Quantity         int // Always >= 1
}

// Photo is a user-captured picture attached to an ownership record. It
// references the record by VariantUUID value, not by database constraint, so
// the two tables stay loosely coupled.
type Photo struct {
	ID          string // UUID
	VariantUUID string
	Data        []byte
	Caption     *string
	CapturedAt  time.Time
	SortOrder   int // Stable display ordering
}

// Operation is one journaled CLI invocation that may mutate the store. The
// auto-increment ID doubles as the backup version counter.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}
