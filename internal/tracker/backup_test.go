package tracker_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"ct-go/internal/database"
	"ct-go/internal/model"
	"ct-go/internal/testutil"
	"ct-go/internal/tracker"
)

func testRecord(variantUUID string) model.OwnershipRecord {
	clock := testutil.FixedClock()
	return model.OwnershipRecord{
		VariantUUID:   variantUUID,
		VariantName:   "Poppy in dress",
		CharacterUUID: "chr-1",
		CharacterName: "Poppy",
		FamilyUUID:    "fam-1",
		FamilyName:    "Meadow Rabbits",
		Status:        model.StatusCollection,
		AddedDate:     clock.Now(),
		EverCollected: true,
		Details:       model.CollectorDetails{Quantity: 1},
		UpdatedAt:     clock.Now(),
	}
}

func TestBackupManager_Backup(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads a snapshot versioned by the operation journal", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		vault := testutil.NewTestVault()
		m := tracker.NewBackupManager(store, store, vault, nil, tracker.NewNopLogger(), "device-1")

		for i := 0; i < 2; i++ {
			op, err := store.CreateOperation(ctx, "Add", "", testutil.FixedClock().Now())
			if err != nil {
				t.Fatalf("CreateOperation() error = %v", err)
			}
			if err := store.FinishOperation(ctx, op.ID, "success", testutil.FixedClock().Now()); err != nil {
				t.Fatalf("FinishOperation() error = %v", err)
			}
		}

		version, err := m.Backup(ctx)
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if version != 2 {
			t.Errorf("version = %d, want 2", version)
		}

		remote, err := vault.SnapshotVersion(ctx, "device-1")
		if err != nil {
			t.Fatalf("SnapshotVersion() error = %v", err)
		}
		if remote != 2 {
			t.Errorf("vault version = %d, want 2", remote)
		}
	})

	t.Run("refuses when the vault snapshot is newer", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		vault := testutil.NewTestVault()
		m := tracker.NewBackupManager(store, store, vault, nil, tracker.NewNopLogger(), "device-1")

		if err := vault.PutSnapshot(ctx, "device-1", strings.NewReader("x"), 1, 99); err != nil {
			t.Fatalf("seeding vault error = %v", err)
		}

		if _, err := m.Backup(ctx); err == nil {
			t.Fatal("Backup() should refuse to overwrite a newer vault snapshot")
		}
	})
}

func TestBackupManager_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips the ledger through the vault", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		vault := testutil.NewTestVault()
		m := tracker.NewBackupManager(store, store, vault, nil, tracker.NewNopLogger(), "device-1")

		if _, err := store.CreateOperation(ctx, "Add", "", testutil.FixedClock().Now()); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if err := store.Upsert(ctx, testRecord("var-1")); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		if _, err := m.Backup(ctx); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}

		destPath := filepath.Join(t.TempDir(), "restored.db")
		if err := m.Restore(ctx, "", destPath); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}

		restored, err := database.NewStore(destPath)
		if err != nil {
			t.Fatalf("opening restored store: %v", err)
		}
		defer restored.Close()

		rec, err := restored.Get(ctx, "var-1")
		if err != nil {
			t.Fatalf("Get() on restored store error = %v", err)
		}
		if rec == nil {
			t.Fatal("record missing from restored store")
		}
		if rec.VariantName != "Poppy in dress" {
			t.Errorf("VariantName = %q", rec.VariantName)
		}
	})

	t.Run("encrypted snapshots round-trip with a passphrase", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		vault := testutil.NewTestVault()
		enc := testutil.NewTestEncryptor()
		m := tracker.NewBackupManager(store, store, vault, enc, tracker.NewNopLogger(), "device-1")

		if _, err := store.CreateOperation(ctx, "Add", "", testutil.FixedClock().Now()); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if err := store.Upsert(ctx, testRecord("var-9")); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		if _, err := m.Backup(ctx); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}

		destPath := filepath.Join(t.TempDir(), "restored.db")
		if err := m.Restore(ctx, "any-passphrase", destPath); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}

		restored, err := database.NewStore(destPath)
		if err != nil {
			t.Fatalf("opening restored store: %v", err)
		}
		defer restored.Close()

		rec, err := restored.Get(ctx, "var-9")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec == nil {
			t.Fatal("record missing from restored store")
		}
	})

	t.Run("empty vault returns ErrNotFound", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		vault := testutil.NewTestVault()
		m := tracker.NewBackupManager(store, store, vault, nil, tracker.NewNopLogger(), "device-1")

		err := m.Restore(ctx, "", filepath.Join(t.TempDir(), "restored.db"))
		if !errors.Is(err, tracker.ErrNotFound) {
			t.Errorf("Restore() error = %v, want ErrNotFound", err)
		}
	})
}
