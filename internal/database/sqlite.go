package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ct-go/internal/database/migrations"
	"ct-go/internal/model"
	"ct-go/internal/tracker"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeFormat is used for timestamps stored in the sync_meta key/value table.
const timeFormat = time.RFC3339Nano

// lastSyncKey is the sync_meta row gating staleness checks.
const lastSyncKey = "last_sync_at"

// Store is the single SQLite-backed store holding both persistence tiers:
// the ephemeral browse cache and the permanent ownership ledger. The two
// tiers share a file but never a transaction — catalog sync cannot touch
// ledger rows by construction.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens a SQLite store at path.
// path can be a file path or ":memory:" for an in-memory store.
func NewStore(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// NewStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a raw configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// WAL lets UI reads observe committed state while a sync or upsert
	// transaction is in flight.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Browse cache operations

// ReplaceAll mirrors the fetched snapshot into the cache in one transaction:
// the cache tables are cleared and rebuilt, so cache membership after commit
// is exactly the fetched set. Pruning by membership rather than by timestamp
// means entities dropped from the remote disappear even when two passes
// share a clock instant or the wall clock steps backwards. The last sync
// timestamp commits with the same transaction, so it only ever reflects a
// fully reconciled cache.
func (s *Store) ReplaceAll(ctx context.Context, snap model.CatalogSnapshot, syncedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"browse_variants", "browse_characters", "browse_families"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, f := range snap.Families {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO browse_families (uuid, name, series, figure_count, last_synced)
			VALUES (?, ?, ?, ?, ?)
		`, f.UUID, f.Name, f.Series, f.FigureCount, syncedAt)
		if err != nil {
			return fmt.Errorf("inserting family %s: %w", f.UUID, err)
		}
	}

	for _, c := range snap.Characters {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO browse_characters (uuid, family_uuid, name, role, species, variant_count, last_synced)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.UUID, c.FamilyUUID, c.Name, c.Role, c.Species, c.VariantCount, syncedAt)
		if err != nil {
			return fmt.Errorf("inserting character %s: %w", c.UUID, err)
		}
	}

	for _, v := range snap.Variants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO browse_variants (uuid, character_uuid, name, set_name, epoch, sku, barcode, release_year, image_url, thumbnail_url, last_synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, v.UUID, v.CharacterUUID, v.Name, v.SetName, v.Epoch, v.SKU, v.Barcode, v.ReleaseYear, v.ImageURL, v.ThumbnailURL, syncedAt)
		if err != nil {
			return fmt.Errorf("inserting variant %s: %w", v.UUID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, syncedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("recording sync time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) ListFamilies(ctx context.Context) ([]model.CatalogFamily, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, name, series, figure_count, last_synced
		FROM browse_families
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing families: %w", err)
	}
	defer rows.Close()

	var out []model.CatalogFamily
	for rows.Next() {
		var f model.CatalogFamily
		if err := rows.Scan(&f.UUID, &f.Name, &f.Series, &f.FigureCount, &f.LastSynced); err != nil {
			return nil, fmt.Errorf("scanning family row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading family rows: %w", err)
	}
	return out, nil
}

func (s *Store) ListCharacters(ctx context.Context, familyUUID string) ([]model.CatalogCharacter, error) {
	query := `
		SELECT uuid, family_uuid, name, role, species, variant_count, last_synced
		FROM browse_characters
	`
	var args []any
	if familyUUID != "" {
		query += " WHERE family_uuid = ?"
		args = append(args, familyUUID)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	var out []model.CatalogCharacter
	for rows.Next() {
		var c model.CatalogCharacter
		if err := rows.Scan(&c.UUID, &c.FamilyUUID, &c.Name, &c.Role, &c.Species, &c.VariantCount, &c.LastSynced); err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading character rows: %w", err)
	}
	return out, nil
}

func (s *Store) ListVariants(ctx context.Context, characterUUID string) ([]model.CatalogVariant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, character_uuid, name, set_name, epoch, sku, barcode, release_year, image_url, thumbnail_url, last_synced
		FROM browse_variants
		WHERE character_uuid = ?
		ORDER BY release_year, name
	`, characterUUID)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	defer rows.Close()

	var out []model.CatalogVariant
	for rows.Next() {
		var v model.CatalogVariant
		if err := rows.Scan(&v.UUID, &v.CharacterUUID, &v.Name, &v.SetName, &v.Epoch, &v.SKU, &v.Barcode, &v.ReleaseYear, &v.ImageURL, &v.ThumbnailURL, &v.LastSynced); err != nil {
			return nil, fmt.Errorf("scanning variant row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading variant rows: %w", err)
	}
	return out, nil
}

// VariantContext resolves a cached variant with its character and family.
func (s *Store) VariantContext(ctx context.Context, variantUUID string) (*tracker.Selection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT v.uuid, v.character_uuid, v.name, v.set_name, v.epoch, v.sku, v.barcode, v.release_year, v.image_url, v.thumbnail_url, v.last_synced,
		       c.uuid, c.family_uuid, c.name, c.role, c.species, c.variant_count, c.last_synced,
		       f.uuid, f.name, f.series, f.figure_count, f.last_synced
		FROM browse_variants v
		JOIN browse_characters c ON c.uuid = v.character_uuid
		JOIN browse_families f ON f.uuid = c.family_uuid
		WHERE v.uuid = ?
	`, variantUUID)

	var sel tracker.Selection
	err := row.Scan(
		&sel.Variant.UUID, &sel.Variant.CharacterUUID, &sel.Variant.Name, &sel.Variant.SetName, &sel.Variant.Epoch,
		&sel.Variant.SKU, &sel.Variant.Barcode, &sel.Variant.ReleaseYear, &sel.Variant.ImageURL, &sel.Variant.ThumbnailURL, &sel.Variant.LastSynced,
		&sel.Character.UUID, &sel.Character.FamilyUUID, &sel.Character.Name, &sel.Character.Role, &sel.Character.Species,
		&sel.Character.VariantCount, &sel.Character.LastSynced,
		&sel.Family.UUID, &sel.Family.Name, &sel.Family.Series, &sel.Family.FigureCount, &sel.Family.LastSynced,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not cached
		}
		return nil, fmt.Errorf("resolving variant context: %w", err)
	}
	return &sel, nil
}

// LastSyncAt returns when the cache was last rebuilt, or the zero time.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = ?", lastSyncKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil // Never synced
		}
		return time.Time{}, fmt.Errorf("reading last sync time: %w", err)
	}

	t, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last sync time %q: %w", value, err)
	}
	return t, nil
}

// Ownership ledger operations

const ledgerColumns = `variant_uuid, variant_name, character_uuid, character_name, family_uuid, family_name,
	status, set_name, epoch, image_url, thumbnail_url, local_image_path, local_thumbnail_path,
	added_date, ever_collected, price, purchase_date, purchase_location, condition, notes, quantity, updated_at`

// Get returns the ownership record for a variant, or nil if absent.
func (s *Store) Get(ctx context.Context, variantUUID string) (*model.OwnershipRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+ledgerColumns+" FROM ownership_ledger WHERE variant_uuid = ?", variantUUID)

	rec, err := scanLedgerRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("reading ownership record: %w", err)
	}
	return rec, nil
}

// Upsert writes the full record as one statement, keyed by variant_uuid.
// The primary key makes a second row for the same variant impossible.
// Collector detail columns are left out of the conflict update: projection
// refreshes never overwrite user-entered metadata (UpdateDetails does that).
func (s *Store) Upsert(ctx context.Context, rec model.OwnershipRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ownership_ledger (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(variant_uuid) DO UPDATE SET
		  variant_name = excluded.variant_name,
		  character_uuid = excluded.character_uuid,
		  character_name = excluded.character_name,
		  family_uuid = excluded.family_uuid,
		  family_name = excluded.family_name,
		  status = excluded.status,
		  set_name = excluded.set_name,
		  epoch = excluded.epoch,
		  image_url = excluded.image_url,
		  thumbnail_url = excluded.thumbnail_url,
		  local_image_path = excluded.local_image_path,
		  local_thumbnail_path = excluded.local_thumbnail_path,
		  added_date = excluded.added_date,
		  ever_collected = excluded.ever_collected,
		  updated_at = excluded.updated_at
	`,
		rec.VariantUUID, rec.VariantName, rec.CharacterUUID, rec.CharacterName, rec.FamilyUUID, rec.FamilyName,
		string(rec.Status), rec.SetName, rec.Epoch, rec.ImageURL, rec.ThumbnailURL,
		nullString(rec.LocalImagePath), nullString(rec.LocalThumbnailPath),
		rec.AddedDate, rec.EverCollected,
		nullFloat(rec.Details.Price), nullTime(rec.Details.PurchaseDate), nullString(rec.Details.PurchaseLocation),
		nullString(rec.Details.Condition), nullString(rec.Details.Notes), rec.Details.Quantity, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting ownership record: %w", err)
	}
	return nil
}

// Delete removes the record and its photos in one transaction.
func (s *Store) Delete(ctx context.Context, variantUUID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ownership_photos WHERE variant_uuid = ?", variantUUID); err != nil {
		return fmt.Errorf("deleting photos: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM ownership_ledger WHERE variant_uuid = ?", variantUUID); err != nil {
		return fmt.Errorf("deleting ownership record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// List returns records filtered by status (empty = all), newest first.
// The status index keeps filtered reads proportional to matches.
func (s *Store) List(ctx context.Context, status model.OwnershipStatus) ([]model.OwnershipRecord, error) {
	query := "SELECT " + ledgerColumns + " FROM ownership_ledger"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY added_date DESC, variant_uuid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ownership records: %w", err)
	}
	defer rows.Close()

	var out []model.OwnershipRecord
	for rows.Next() {
		rec, err := scanLedgerRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning ownership row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ownership rows: %w", err)
	}
	return out, nil
}

// UpdateDetails replaces collector metadata on an existing record.
func (s *Store) UpdateDetails(ctx context.Context, variantUUID string, details model.CollectorDetails, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ownership_ledger
		SET price = ?, purchase_date = ?, purchase_location = ?, condition = ?, notes = ?, quantity = ?, updated_at = ?
		WHERE variant_uuid = ?
	`,
		nullFloat(details.Price), nullTime(details.PurchaseDate), nullString(details.PurchaseLocation),
		nullString(details.Condition), nullString(details.Notes), details.Quantity, updatedAt, variantUUID,
	)
	if err != nil {
		return fmt.Errorf("updating collector details: %w", err)
	}
	return nil
}

// AddPhoto stores a photo, assigning the next free sort order for its variant.
func (s *Store) AddPhoto(ctx context.Context, photo model.Photo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ownership_photos (id, variant_uuid, data, caption, captured_at, sort_order)
		VALUES (?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(sort_order) + 1, 0) FROM ownership_photos WHERE variant_uuid = ?))
	`, photo.ID, photo.VariantUUID, photo.Data, nullString(photo.Caption), photo.CapturedAt, photo.VariantUUID)
	if err != nil {
		return fmt.Errorf("inserting photo: %w", err)
	}
	return nil
}

func (s *Store) ListPhotos(ctx context.Context, variantUUID string) ([]model.Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, variant_uuid, data, caption, captured_at, sort_order
		FROM ownership_photos
		WHERE variant_uuid = ?
		ORDER BY sort_order
	`, variantUUID)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	defer rows.Close()

	var out []model.Photo
	for rows.Next() {
		var p model.Photo
		var caption sql.NullString
		if err := rows.Scan(&p.ID, &p.VariantUUID, &p.Data, &caption, &p.CapturedAt, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning photo row: %w", err)
		}
		p.Caption = stringPtr(caption)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading photo rows: %w", err)
	}
	return out, nil
}

// Operation journal

func (s *Store) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (started_at, operation, parameters, status)
		VALUES (?, ?, ?, 'pending')
	`, startedAt, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}

	return &model.Operation{
		ID:         id,
		StartedAt:  startedAt,
		Operation:  operation,
		Parameters: parameters,
		Status:     "pending",
	}, nil
}

func (s *Store) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE operations SET finished_at = ?, status = ? WHERE id = ?
	`, finishedAt, status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *Store) ListOperations(ctx context.Context, limit int) ([]model.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var out []model.Operation
	for rows.Next() {
		var op model.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		op.FinishedAt = timePtr(finished)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading operation rows: %w", err)
	}
	return out, nil
}

func (s *Store) MaxOperationID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM operations").Scan(&id); err != nil {
		return 0, fmt.Errorf("reading max operation id: %w", err)
	}
	return id, nil
}

// Lifecycle

// Path returns the store file path (or ":memory:" for in-memory stores).
func (s *Store) Path() string {
	return s.path
}

// CheckMigrations verifies the store schema is up-to-date.
func (s *Store) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// SnapshotTo creates a complete copy of the store at destPath using VACUUM INTO.
func (s *Store) SnapshotTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshotting store: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanLedgerRow scans one ownership_ledger row in ledgerColumns order.
func scanLedgerRow(scan func(dest ...any) error) (*model.OwnershipRecord, error) {
	var rec model.OwnershipRecord
	var status string
	var localImage, localThumb, purchaseLocation, condition, notes sql.NullString
	var price sql.NullFloat64
	var purchaseDate sql.NullTime

	err := scan(
		&rec.VariantUUID, &rec.VariantName, &rec.CharacterUUID, &rec.CharacterName, &rec.FamilyUUID, &rec.FamilyName,
		&status, &rec.SetName, &rec.Epoch, &rec.ImageURL, &rec.ThumbnailURL, &localImage, &localThumb,
		&rec.AddedDate, &rec.EverCollected, &price, &purchaseDate, &purchaseLocation, &condition, &notes,
		&rec.Details.Quantity, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.OwnershipStatus(status)
	rec.LocalImagePath = stringPtr(localImage)
	rec.LocalThumbnailPath = stringPtr(localThumb)
	rec.Details.Price = floatPtr(price)
	rec.Details.PurchaseDate = timePtr(purchaseDate)
	rec.Details.PurchaseLocation = stringPtr(purchaseLocation)
	rec.Details.Condition = stringPtr(condition)
	rec.Details.Notes = stringPtr(notes)
	return &rec, nil
}

// Null conversion helpers between pointer fields and database/sql types.

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

// Compile-time checks that Store implements the core storage interfaces.
var (
	_ tracker.BrowseCache  = (*Store)(nil)
	_ tracker.Ledger       = (*Store)(nil)
	_ tracker.OperationLog = (*Store)(nil)
	_ tracker.DatabaseFile = (*Store)(nil)
)
