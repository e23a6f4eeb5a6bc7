package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ct-go/internal/model"
	"ct-go/internal/testutil"
	"ct-go/internal/tracker"
)

func testSelection() tracker.Selection {
	return tracker.Selection{
		Variant: model.CatalogVariant{
			UUID:          "var-1",
			CharacterUUID: "chr-1",
			Name:          "Poppy in dress",
			SetName:       "Starter Home",
			Epoch:         "1985-1999",
			ImageURL:      "https://img.example/var-1/full.jpg",
			ThumbnailURL:  "https://img.example/var-1/thumb.jpg",
		},
		Character: model.CatalogCharacter{UUID: "chr-1", FamilyUUID: "fam-1", Name: "Poppy"},
		Family:    model.CatalogFamily{UUID: "fam-1", Name: "Meadow Rabbits"},
	}
}

func testBundle() model.VariantBundle {
	sel := testSelection()
	return model.VariantBundle{
		Variant:   sel.Variant,
		Character: sel.Character,
		Family:    sel.Family,
	}
}

func newTestEngine(t *testing.T) (*tracker.UpsertEngine, *testutil.StubImageCache, *testutil.StubClock, tracker.Ledger) {
	t.Helper()
	store := testutil.NewTestStore(t)
	images := testutil.NewStubImageCache()
	clock := testutil.FixedClock()
	engine := tracker.NewUpsertEngine(store, images, tracker.NewNopLogger(), clock, testutil.NewStubIDGenerator())
	return engine, images, clock, store
}

func TestUpsertEngine_AddFromSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a record with added date and defaults", func(t *testing.T) {
		engine, _, clock, ledger := newTestEngine(t)

		rec, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection)
		if err != nil {
			t.Fatalf("AddFromSelection() error = %v", err)
		}

		if rec.VariantUUID != "var-1" {
			t.Errorf("VariantUUID = %s, want var-1", rec.VariantUUID)
		}
		if rec.Status != model.StatusCollection {
			t.Errorf("Status = %s, want collection", rec.Status)
		}
		if !rec.AddedDate.Equal(clock.Now()) {
			t.Errorf("AddedDate = %v, want %v", rec.AddedDate, clock.Now())
		}
		if rec.Details.Quantity != 1 {
			t.Errorf("Quantity = %d, want 1", rec.Details.Quantity)
		}
		if rec.LocalImagePath == nil || rec.LocalThumbnailPath == nil {
			t.Error("local image paths not set despite successful cache")
		}

		stored, err := ledger.Get(ctx, "var-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored == nil {
			t.Fatal("record not persisted")
		}
		if stored.CharacterName != "Poppy" || stored.FamilyName != "Meadow Rabbits" {
			t.Errorf("denormalized names = %q/%q", stored.CharacterName, stored.FamilyName)
		}
	})

	t.Run("re-adding is an idempotent update, never a duplicate", func(t *testing.T) {
		engine, _, _, ledger := newTestEngine(t)

		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("first add error = %v", err)
		}
		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("second add error = %v", err)
		}

		all, err := ledger.List(ctx, "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("ledger rows = %d, want 1", len(all))
		}
	})

	t.Run("rejects empty variant uuid", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		sel := testSelection()
		sel.Variant.UUID = ""
		if _, err := engine.AddFromSelection(ctx, sel, model.StatusCollection); err == nil {
			t.Error("AddFromSelection() with empty uuid should fail")
		}
	})

	t.Run("rejects invalid status", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		if _, err := engine.AddFromSelection(ctx, testSelection(), "hoarded"); err == nil {
			t.Error("AddFromSelection() with invalid status should fail")
		}
	})

	t.Run("image failure degrades to remote urls", func(t *testing.T) {
		engine, images, _, _ := newTestEngine(t)
		images.Fail = true

		rec, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection)
		if err != nil {
			t.Fatalf("AddFromSelection() error = %v", err)
		}
		if rec.LocalImagePath != nil || rec.LocalThumbnailPath != nil {
			t.Error("local paths set despite failed cache")
		}
		if rec.ImageURL == "" {
			t.Error("remote image url lost; nothing left to retry from")
		}
	})
}

func TestUpsertEngine_AddedDateLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("stamped once on first entry into the collection", func(t *testing.T) {
		engine, _, clock, _ := newTestEngine(t)
		firstAdd := clock.Now()

		rec, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection)
		if err != nil {
			t.Fatalf("add error = %v", err)
		}
		if !rec.AddedDate.Equal(firstAdd) {
			t.Fatalf("AddedDate = %v, want %v", rec.AddedDate, firstAdd)
		}

		// A later re-add must not move the date.
		clock.Advance(48 * time.Hour)
		rec, err = engine.AddFromScan(ctx, testBundle(), model.StatusCollection)
		if err != nil {
			t.Fatalf("re-add error = %v", err)
		}
		if !rec.AddedDate.Equal(firstAdd) {
			t.Errorf("AddedDate moved on re-add: %v, want %v", rec.AddedDate, firstAdd)
		}
	})

	t.Run("wishlist to collection re-stamps exactly once", func(t *testing.T) {
		engine, _, clock, _ := newTestEngine(t)

		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusWishlist); err != nil {
			t.Fatalf("wishlist add error = %v", err)
		}

		clock.Advance(72 * time.Hour)
		promoted := clock.Now()
		rec, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection)
		if err != nil {
			t.Fatalf("promote error = %v", err)
		}
		if !rec.AddedDate.Equal(promoted) {
			t.Errorf("AddedDate = %v, want promotion time %v", rec.AddedDate, promoted)
		}

		// Demote back to wishlist and promote again: the date must hold.
		clock.Advance(24 * time.Hour)
		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusWishlist); err != nil {
			t.Fatalf("demote error = %v", err)
		}
		clock.Advance(24 * time.Hour)
		rec, err = engine.AddFromSelection(ctx, testSelection(), model.StatusCollection)
		if err != nil {
			t.Fatalf("second promote error = %v", err)
		}
		if !rec.AddedDate.Equal(promoted) {
			t.Errorf("AddedDate re-stamped on second promotion: %v, want %v", rec.AddedDate, promoted)
		}
	})

	t.Run("status changes persist while details survive", func(t *testing.T) {
		engine, _, _, ledger := newTestEngine(t)

		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("add error = %v", err)
		}

		price := 12.5
		details := model.CollectorDetails{Price: &price, Quantity: 2}
		if _, err := engine.SetDetails(ctx, "var-1", details); err != nil {
			t.Fatalf("SetDetails() error = %v", err)
		}

		// A projection refresh must not clobber collector-entered metadata.
		if _, err := engine.AddFromScan(ctx, testBundle(), model.StatusWishlist); err != nil {
			t.Fatalf("re-add error = %v", err)
		}

		stored, err := ledger.Get(ctx, "var-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.Status != model.StatusWishlist {
			t.Errorf("Status = %s, want wishlist", stored.Status)
		}
		if stored.Details.Price == nil || *stored.Details.Price != price {
			t.Errorf("Price lost on re-add: %v", stored.Details.Price)
		}
		if stored.Details.Quantity != 2 {
			t.Errorf("Quantity = %d, want 2", stored.Details.Quantity)
		}
	})
}

func TestUpsertEngine_BothAdaptersShareOnePath(t *testing.T) {
	ctx := context.Background()
	engine, _, _, ledger := newTestEngine(t)

	if _, err := engine.AddFromScan(ctx, testBundle(), model.StatusCollection); err != nil {
		t.Fatalf("scan add error = %v", err)
	}
	if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
		t.Fatalf("picker add error = %v", err)
	}

	all, err := ledger.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ledger rows = %d, want 1: scan and picker adds must converge", len(all))
	}
}

func TestUpsertEngine_ConcurrentAddsSameVariant(t *testing.T) {
	ctx := context.Background()
	engine, _, _, ledger := newTestEngine(t)

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = engine.AddFromSelection(ctx, testSelection(), model.StatusCollection)
			} else {
				_, err = engine.AddFromScan(ctx, testBundle(), model.StatusCollection)
			}
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent add error = %v", err)
		}
	}

	all, err := ledger.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ledger rows = %d, want 1 after %d concurrent adds", len(all), workers)
	}
}

func TestUpsertEngine_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes record, photos and cached images", func(t *testing.T) {
		engine, images, _, ledger := newTestEngine(t)

		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("add error = %v", err)
		}
		if _, err := engine.AttachPhoto(ctx, "var-1", []byte("jpeg-bytes"), "shelf"); err != nil {
			t.Fatalf("AttachPhoto() error = %v", err)
		}

		if err := engine.Remove(ctx, "var-1"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		rec, err := ledger.Get(ctx, "var-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec != nil {
			t.Error("record still present after Remove")
		}

		photos, err := ledger.ListPhotos(ctx, "var-1")
		if err != nil {
			t.Fatalf("ListPhotos() error = %v", err)
		}
		if len(photos) != 0 {
			t.Errorf("photos after Remove = %d, want 0", len(photos))
		}

		if len(images.Deleted) != 1 || images.Deleted[0] != "var-1" {
			t.Errorf("cached images not deleted: %v", images.Deleted)
		}
	})

	t.Run("removing an absent variant is a no-op", func(t *testing.T) {
		engine, images, _, _ := newTestEngine(t)
		if err := engine.Remove(ctx, "never-added"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if len(images.Deleted) != 0 {
			t.Error("image delete attempted for absent variant")
		}
	})

	t.Run("failed image delete still removes the record", func(t *testing.T) {
		engine, images, _, ledger := newTestEngine(t)
		images.DeleteErr = errors.New("permission denied")

		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("add error = %v", err)
		}
		if err := engine.Remove(ctx, "var-1"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		rec, _ := ledger.Get(ctx, "var-1")
		if rec != nil {
			t.Error("record survived Remove because of an image delete failure")
		}
	})
}

func TestUpsertEngine_SetDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects quantity below one", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		if _, err := engine.SetDetails(ctx, "var-1", model.CollectorDetails{Quantity: 0}); err == nil {
			t.Error("SetDetails() with quantity 0 should fail")
		}
	})

	t.Run("unknown variant returns ErrNotFound", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		_, err := engine.SetDetails(ctx, "missing", model.CollectorDetails{Quantity: 1})
		if !errors.Is(err, tracker.ErrNotFound) {
			t.Errorf("SetDetails() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("replaces metadata on an owned variant", func(t *testing.T) {
		engine, _, _, ledger := newTestEngine(t)
		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("add error = %v", err)
		}

		price := 45.0
		purchased := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
		location := "flea market"
		details := model.CollectorDetails{
			Price:            &price,
			PurchaseDate:     &purchased,
			PurchaseLocation: &location,
			Quantity:         3,
		}
		if _, err := engine.SetDetails(ctx, "var-1", details); err != nil {
			t.Fatalf("SetDetails() error = %v", err)
		}

		stored, _ := ledger.Get(ctx, "var-1")
		if stored.Details.Price == nil || *stored.Details.Price != price {
			t.Errorf("Price = %v, want %v", stored.Details.Price, price)
		}
		if stored.Details.PurchaseDate == nil || !stored.Details.PurchaseDate.Equal(purchased) {
			t.Errorf("PurchaseDate = %v, want %v", stored.Details.PurchaseDate, purchased)
		}
		if stored.Details.Quantity != 3 {
			t.Errorf("Quantity = %d, want 3", stored.Details.Quantity)
		}
	})
}

func TestUpsertEngine_AttachPhoto(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects empty data", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		if _, err := engine.AttachPhoto(ctx, "var-1", nil, ""); err == nil {
			t.Error("AttachPhoto() with empty data should fail")
		}
	})

	t.Run("unknown variant returns ErrNotFound", func(t *testing.T) {
		engine, _, _, _ := newTestEngine(t)
		_, err := engine.AttachPhoto(ctx, "missing", []byte("x"), "")
		if !errors.Is(err, tracker.ErrNotFound) {
			t.Errorf("AttachPhoto() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("photos accumulate in sort order", func(t *testing.T) {
		engine, _, _, ledger := newTestEngine(t)
		if _, err := engine.AddFromSelection(ctx, testSelection(), model.StatusCollection); err != nil {
			t.Fatalf("add error = %v", err)
		}

		for i := 0; i < 3; i++ {
			caption := fmt.Sprintf("photo %d", i)
			if _, err := engine.AttachPhoto(ctx, "var-1", []byte{byte(i + 1)}, caption); err != nil {
				t.Fatalf("AttachPhoto() #%d error = %v", i, err)
			}
		}

		photos, err := ledger.ListPhotos(ctx, "var-1")
		if err != nil {
			t.Fatalf("ListPhotos() error = %v", err)
		}
		if len(photos) != 3 {
			t.Fatalf("photos = %d, want 3", len(photos))
		}
		for i, p := range photos {
			if p.SortOrder != i {
				t.Errorf("photo %d SortOrder = %d, want %d", i, p.SortOrder, i)
			}
		}
	})
}
