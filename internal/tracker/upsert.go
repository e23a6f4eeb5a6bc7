package tracker

import (
	"context"
	"fmt"

	"ct-go/internal/model"
)

// Selection is a catalog-picker input: a variant with its character and
// family context, as read from the browse cache.
type Selection struct {
	Variant   model.CatalogVariant
	Character model.CatalogCharacter
	Family    model.CatalogFamily
}

// sourceFields is the canonical field set both input shapes normalize into.
// One reconciliation path, two adapters.
type sourceFields struct {
	variantUUID   string
	variantName   string
	characterUUID string
	characterName string
	familyUUID    string
	familyName    string
	setName       string
	epoch         string
	imageURL      string
	thumbnailURL  string
}

// UpsertEngine converts catalog-derived inputs into canonical upserts
// against the ownership ledger, coordinating image caching along the way.
// All mutations for the same variant uuid are strictly serialized; distinct
// variants proceed in parallel.
type UpsertEngine struct {
	ledger Ledger
	images ImageCache
	logger Logger
	clock  Clock
	idgen  IDGenerator
	locks  keyedMutex
}

// NewUpsertEngine creates an UpsertEngine with the provided dependencies.
func NewUpsertEngine(ledger Ledger, images ImageCache, logger Logger, clock Clock, idgen IDGenerator) *UpsertEngine {
	return &UpsertEngine{
		ledger: ledger,
		images: images,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// AddFromSelection records ownership of a variant chosen from the catalog
// browser. Adding a variant that is already present is an idempotent update,
// never an error; callers wanting "already owned" feedback pre-check with a
// ledger read.
func (e *UpsertEngine) AddFromSelection(ctx context.Context, sel Selection, status model.OwnershipStatus) (*model.OwnershipRecord, error) {
	return e.addOrUpdate(ctx, sourceFields{
		variantUUID:   sel.Variant.UUID,
		variantName:   sel.Variant.Name,
		characterUUID: sel.Character.UUID,
		characterName: sel.Character.Name,
		familyUUID:    sel.Family.UUID,
		familyName:    sel.Family.Name,
		setName:       sel.Variant.SetName,
		epoch:         sel.Variant.Epoch,
		imageURL:      sel.Variant.ImageURL,
		thumbnailURL:  sel.Variant.ThumbnailURL,
	}, status)
}

// AddFromScan records ownership of a variant resolved from a barcode scan.
// The bundle is self-contained, so no browse cache read is needed.
func (e *UpsertEngine) AddFromScan(ctx context.Context, bundle model.VariantBundle, status model.OwnershipStatus) (*model.OwnershipRecord, error) {
	return e.addOrUpdate(ctx, sourceFields{
		variantUUID:   bundle.Variant.UUID,
		variantName:   bundle.Variant.Name,
		characterUUID: bundle.Character.UUID,
		characterName: bundle.Character.Name,
		familyUUID:    bundle.Family.UUID,
		familyName:    bundle.Family.Name,
		setName:       bundle.Variant.SetName,
		epoch:         bundle.Variant.Epoch,
		imageURL:      bundle.Variant.ImageURL,
		thumbnailURL:  bundle.Variant.ThumbnailURL,
	}, status)
}

// addOrUpdate is the single reconciliation path behind both adapters.
func (e *UpsertEngine) addOrUpdate(ctx context.Context, src sourceFields, status model.OwnershipStatus) (*model.OwnershipRecord, error) {
	if src.variantUUID == "" {
		return nil, fmt.Errorf("variant uuid is required")
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid ownership status: %q", status)
	}

	unlock := e.locks.Lock(src.variantUUID)
	defer unlock()

	existing, err := e.ledger.Get(ctx, src.variantUUID)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	// Best-effort: a failed download degrades to nil paths and the record
	// keeps its remote URLs as the retry source.
	fullPath, thumbPath := e.images.Cache(ctx, src.variantUUID, src.imageURL, src.thumbnailURL)

	now := e.clock.Now()
	var rec model.OwnershipRecord
	if existing != nil {
		rec = *existing
		rec.Status = status
		if status == model.StatusCollection && !rec.EverCollected {
			// First transition into collection stamps AddedDate. It is
			// never touched again.
			rec.AddedDate = now
			rec.EverCollected = true
		}
	} else {
		rec = model.OwnershipRecord{
			VariantUUID:   src.variantUUID,
			AddedDate:     now,
			EverCollected: status == model.StatusCollection,
			Status:        status,
			Details:       model.CollectorDetails{Quantity: 1},
		}
	}

	// Mutable projection fields refresh on every call.
	rec.VariantName = src.variantName
	rec.CharacterUUID = src.characterUUID
	rec.CharacterName = src.characterName
	rec.FamilyUUID = src.familyUUID
	rec.FamilyName = src.familyName
	rec.SetName = src.setName
	rec.Epoch = src.epoch
	rec.ImageURL = src.imageURL
	rec.ThumbnailURL = src.thumbnailURL
	rec.LocalImagePath = fullPath
	rec.LocalThumbnailPath = thumbPath
	rec.UpdatedAt = now

	if err := e.ledger.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("writing ledger: %w", err)
	}

	e.logger.Info("ownership recorded", "variant", rec.VariantUUID, "status", rec.Status)
	return &rec, nil
}

// Remove deletes the ownership record for a variant together with its photos
// and cached image files. Removing a variant that was never added is a
// no-op, not an error.
func (e *UpsertEngine) Remove(ctx context.Context, variantUUID string) error {
	unlock := e.locks.Lock(variantUUID)
	defer unlock()

	existing, err := e.ledger.Get(ctx, variantUUID)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	if existing == nil {
		return nil
	}

	// A failed file delete leaves an orphaned file behind, which is
	// harmless; the record must still go.
	if err := e.images.Delete(variantUUID); err != nil {
		e.logger.Warn("deleting cached images failed", "variant", variantUUID, "error", err)
	}

	if err := e.ledger.Delete(ctx, variantUUID); err != nil {
		return fmt.Errorf("deleting ledger record: %w", err)
	}

	e.logger.Info("ownership removed", "variant", variantUUID)
	return nil
}

// SetDetails replaces the collector metadata on an owned variant.
// Returns ErrNotFound if the variant is not in the ledger.
func (e *UpsertEngine) SetDetails(ctx context.Context, variantUUID string, details model.CollectorDetails) (*model.OwnershipRecord, error) {
	if details.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1, got %d", details.Quantity)
	}

	unlock := e.locks.Lock(variantUUID)
	defer unlock()

	existing, err := e.ledger.Get(ctx, variantUUID)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("variant %s: %w", variantUUID, ErrNotFound)
	}

	now := e.clock.Now()
	if err := e.ledger.UpdateDetails(ctx, variantUUID, details, now); err != nil {
		return nil, fmt.Errorf("updating details: %w", err)
	}

	existing.Details = details
	existing.UpdatedAt = now
	return existing, nil
}

// AttachPhoto stores a user-captured photo against an owned variant.
// Returns ErrNotFound if the variant is not in the ledger.
func (e *UpsertEngine) AttachPhoto(ctx context.Context, variantUUID string, data []byte, caption string) (*model.Photo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("photo data is empty")
	}

	unlock := e.locks.Lock(variantUUID)
	defer unlock()

	existing, err := e.ledger.Get(ctx, variantUUID)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("variant %s: %w", variantUUID, ErrNotFound)
	}

	photo := model.Photo{
		ID:          e.idgen.New(),
		VariantUUID: variantUUID,
		Data:        data,
		CapturedAt:  e.clock.Now(),
	}
	if caption != "" {
		photo.Caption = &caption
	}

	if err := e.ledger.AddPhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("storing photo: %w", err)
	}

	return &photo, nil
}
