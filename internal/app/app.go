package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"ct-go/internal/catalog"
	"ct-go/internal/config"
	"ct-go/internal/database"
	"ct-go/internal/encryption"
	"ct-go/internal/imagecache"
	"ct-go/internal/model"
	"ct-go/internal/tracker"
	"ct-go/internal/vault"
)

// App is the application layer between the CLI and the tracker core.
// It constructs all dependencies from config, exposes high-level operations,
// and manages the store lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     *database.Store
	catalog   tracker.CatalogClient
	images    tracker.ImageCache
	vault     tracker.Vault // nil when no vault is configured
	syncer    *tracker.SyncOrchestrator
	engine    *tracker.UpsertEngine
	backup    *tracker.BackupManager // nil when no vault is configured
	encryptor tracker.Encryptor      // nil when encryption type is "none"
	logger    tracker.Logger
	clock     tracker.Clock
	op        *TrackedOperation
	logFile   *os.File
	storeOpen bool
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Add", "SyncAll").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("store schema out of date: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	client := catalog.NewClient(cfg.Catalog.BaseURL, time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second)

	images, err := imagecache.NewManager(cfg.Images.Dir, time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second, logger)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating image cache: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	var v tracker.Vault
	var backup *tracker.BackupManager
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			store.Close()
			logFile.Close()
			return nil, fmt.Errorf("creating vault: %w", err)
		}
		backup = tracker.NewBackupManager(store, store, v, enc, logger, cfg.DeviceID)
	}

	clock := tracker.RealClock{}
	staleness := time.Duration(cfg.Sync.StalenessDays) * 24 * time.Hour
	syncer := tracker.NewSyncOrchestrator(client, store, staleness, logger, clock)
	engine := tracker.NewUpsertEngine(store, images, logger, clock, tracker.UUIDGenerator{})

	return &App{
		cfg:       cfg,
		store:     store,
		catalog:   client,
		images:    images,
		vault:     v,
		syncer:    syncer,
		engine:    engine,
		backup:    backup,
		encryptor: enc,
		logger:    logger,
		clock:     clock,
		op:        NewTrackedOperation(operation, ""),
		logFile:   logFile,
		storeOpen: true,
	}, nil
}

// persistOperation saves the tracked operation to the store, giving it an
// auto-increment ID. This should only be called for mutating commands.
func (a *App) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	dbOp, err := a.store.CreateOperation(ctx, a.op.Operation, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Sync refreshes the browse cache from the remote catalog. When force is
// false the staleness gate may skip the fetch entirely. The invocation is
// journaled either way; the implicit refresh before a browse read is not.
func (a *App) Sync(ctx context.Context, force bool) (tracker.SyncResult, error) {
	if err := a.persistOperation(ctx); err != nil {
		return tracker.SyncResult{}, err
	}
	return a.syncer.SyncAll(ctx, force)
}

// refreshCache runs a staleness-gated sync before a browse read. A sync
// failure over an already-populated cache degrades to serving stale data;
// a failure over an empty cache is fatal because there is nothing to show.
func (a *App) refreshCache(ctx context.Context) error {
	if _, err := a.syncer.SyncAll(ctx, false); err != nil {
		last, lerr := a.store.LastSyncAt(ctx)
		if lerr != nil {
			return lerr
		}
		if last.IsZero() {
			return fmt.Errorf("catalog unavailable and nothing cached yet: %w", err)
		}
		a.logger.Warn("serving stale catalog data", "last_sync", last, "error", err)
	}
	return nil
}

// BrowseFamilies returns the cached critter families, refreshing first when stale.
func (a *App) BrowseFamilies(ctx context.Context) ([]model.CatalogFamily, error) {
	if err := a.refreshCache(ctx); err != nil {
		return nil, err
	}
	return a.store.ListFamilies(ctx)
}

// BrowseCharacters returns cached characters, optionally scoped to one family.
func (a *App) BrowseCharacters(ctx context.Context, familyUUID string) ([]model.CatalogCharacter, error) {
	if err := a.refreshCache(ctx); err != nil {
		return nil, err
	}
	return a.store.ListCharacters(ctx, familyUUID)
}

// BrowseVariants returns the cached variants of one character.
func (a *App) BrowseVariants(ctx context.Context, characterUUID string) ([]model.CatalogVariant, error) {
	if err := a.refreshCache(ctx); err != nil {
		return nil, err
	}
	return a.store.ListVariants(ctx, characterUUID)
}

// Add places a variant picked from the browse cache into the ledger. If the
// variant is not cached yet, one forced sync is attempted before giving up
// with tracker.ErrNotFound.
func (a *App) Add(ctx context.Context, variantUUID string, status model.OwnershipStatus) (*model.OwnershipRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}

	sel, err := a.store.VariantContext(ctx, variantUUID)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		if _, err := a.syncer.SyncAll(ctx, true); err != nil {
			return nil, fmt.Errorf("variant not cached and sync failed: %w", err)
		}
		sel, err = a.store.VariantContext(ctx, variantUUID)
		if err != nil {
			return nil, err
		}
		if sel == nil {
			return nil, fmt.Errorf("variant %s: %w", variantUUID, tracker.ErrNotFound)
		}
	}

	return a.engine.AddFromSelection(ctx, *sel, status)
}

// Scan resolves a barcode against the remote catalog and places the matched
// variant into the ledger through the same path a picker selection takes.
func (a *App) Scan(ctx context.Context, barcode string, status model.OwnershipStatus) (*model.OwnershipRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}

	bundle, err := a.catalog.LookupBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}

	return a.engine.AddFromScan(ctx, *bundle, status)
}

// Remove deletes a variant's ownership record, its photos, and its cached images.
func (a *App) Remove(ctx context.Context, variantUUID string) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.engine.Remove(ctx, variantUUID)
}

// List returns owned records filtered by status; empty status returns everything.
func (a *App) List(ctx context.Context, status model.OwnershipStatus) ([]model.OwnershipRecord, error) {
	return a.store.List(ctx, status)
}

// Get returns a single ownership record, or nil when the variant was never added.
func (a *App) Get(ctx context.Context, variantUUID string) (*model.OwnershipRecord, error) {
	return a.store.Get(ctx, variantUUID)
}

// SetDetails replaces the collector metadata on an owned variant.
func (a *App) SetDetails(ctx context.Context, variantUUID string, details model.CollectorDetails) (*model.OwnershipRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	return a.engine.SetDetails(ctx, variantUUID, details)
}

// AttachPhoto stores a collector photo against an owned variant.
func (a *App) AttachPhoto(ctx context.Context, variantUUID string, data []byte, caption string) (*model.Photo, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	return a.engine.AttachPhoto(ctx, variantUUID, data, caption)
}

// Photos returns the photos attached to a variant, in sort order.
func (a *App) Photos(ctx context.Context, variantUUID string) ([]model.Photo, error) {
	return a.store.ListPhotos(ctx, variantUUID)
}

// History returns the most recent journaled operations.
func (a *App) History(ctx context.Context, limit int) ([]model.Operation, error) {
	return a.store.ListOperations(ctx, limit)
}

// SetupKeys generates the encryption key pair protected by the passphrase.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled in config")
	}
	return a.encryptor.Setup(passphrase)
}

// Backup snapshots the ledger and uploads it to the configured vault.
// Returns the backup version.
func (a *App) Backup(ctx context.Context) (int64, error) {
	if a.backup == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	// Journal before snapshotting so the backup's own journal row is part
	// of the version it uploads.
	if err := a.persistOperation(ctx); err != nil {
		return 0, err
	}
	return a.backup.Backup(ctx)
}

// Restore downloads the latest vault snapshot and replaces the local store
// file. The store is closed first; the process should exit after a restore.
func (a *App) Restore(ctx context.Context, passphrase string) error {
	if a.backup == nil {
		return fmt.Errorf("no vault configured")
	}

	destPath := a.store.Path()
	if destPath == "" {
		return fmt.Errorf("store is not file-backed; cannot restore")
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing store before restore: %w", err)
	}
	a.storeOpen = false

	return a.backup.Restore(ctx, passphrase, destPath)
}

// FailOperation marks the journaled operation as failed. The CLI calls this
// before Close when the command's work returned an error, so history shows
// the real outcome.
func (a *App) FailOperation() {
	a.op.Status = "error"
}

// Close finalizes the tracked operation and releases all resources.
func (a *App) Close() error {
	var firstErr error

	if a.storeOpen {
		if a.op.Persisted() {
			if err := a.store.FinishOperation(context.Background(), a.op.ID, a.op.Status, a.clock.Now()); err != nil {
				firstErr = fmt.Errorf("finishing operation: %w", err)
			}
		}
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
		a.storeOpen = false
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
