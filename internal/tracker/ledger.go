package tracker

import (
	"context"
	"time"

	"ct-go/internal/model"
)

// Ledger is the permanent store of ownership records and attached photos.
// It is structurally independent of the browse cache: no read or write here
// ever touches — or is blocked by — catalog sync.
//
// Find-style reads return (nil, nil) when nothing matches. Mutations are
// transactional: either the whole row (status, fields, timestamps) commits,
// or nothing does.
type Ledger interface {
	// Get returns the ownership record for a variant, or nil if the variant
	// was never added.
	Get(ctx context.Context, variantUUID string) (*model.OwnershipRecord, error)

	// Upsert writes the full record as a single durable write, inserting or
	// replacing by VariantUUID. The unique-key invariant is enforced by the
	// store: at most one row per VariantUUID, always.
	Upsert(ctx context.Context, rec model.OwnershipRecord) error

	// Delete removes the record and all photos referencing the variant in
	// one transaction. Deleting an absent variant is a no-op.
	Delete(ctx context.Context, variantUUID string) error

	// List returns records filtered by status, newest first.
	// An empty status returns everything.
	List(ctx context.Context, status model.OwnershipStatus) ([]model.OwnershipRecord, error)

	// UpdateDetails replaces the collector metadata on an existing record.
	UpdateDetails(ctx context.Context, variantUUID string, details model.CollectorDetails, updatedAt time.Time) error

	// AddPhoto stores a photo. The store assigns the next free sort order
	// for the variant; the SortOrder field on photo is ignored.
	AddPhoto(ctx context.Context, photo model.Photo) error

	// ListPhotos returns the photos for a variant ordered by sort order.
	ListPhotos(ctx context.Context, variantUUID string) ([]model.Photo, error)
}

// OperationLog journals mutating CLI invocations. The auto-increment
// operation ID doubles as the ledger backup version.
type OperationLog interface {
	CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error)
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error
	ListOperations(ctx context.Context, limit int) ([]model.Operation, error)
	MaxOperationID(ctx context.Context) (int64, error)
}

// DatabaseFile exposes the on-disk form of the store for backup snapshots.
type DatabaseFile interface {
	// SnapshotTo writes a complete, consistent copy of the store to destPath.
	SnapshotTo(destPath string) error
}
