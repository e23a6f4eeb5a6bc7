package tracker

import (
	"context"
	"fmt"
	"io"
	"os"
)

// BackupManager snapshots the store to a vault and restores it back. The
// snapshot version is the operation journal's max ID, so a vault holding a
// higher version than the local journal means the local store is stale.
type BackupManager struct {
	db        DatabaseFile
	ops       OperationLog
	vault     Vault
	encryptor Encryptor
	logger    Logger
	deviceID  string
}

// NewBackupManager creates a BackupManager. encryptor may be nil, in which
// case snapshots are stored in plaintext.
func NewBackupManager(db DatabaseFile, ops OperationLog, vault Vault, encryptor Encryptor, logger Logger, deviceID string) *BackupManager {
	return &BackupManager{
		db:        db,
		ops:       ops,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
		deviceID:  deviceID,
	}
}

// encrypted reports whether snapshots pass through the encryptor.
func (m *BackupManager) encrypted() bool {
	return m.encryptor != nil && m.encryptor.IsConfigured()
}

// Backup snapshots the store and uploads it to the vault.
// Returns the version the snapshot was stored under.
// Refuses to overwrite a vault snapshot newer than the local journal.
func (m *BackupManager) Backup(ctx context.Context) (int64, error) {
	version, err := m.ops.MaxOperationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading local version: %w", err)
	}

	remote, err := m.vault.SnapshotVersion(ctx, m.deviceID)
	if err != nil {
		return 0, fmt.Errorf("checking vault version: %w", err)
	}
	if remote > version {
		return 0, fmt.Errorf("vault snapshot (version %d) is newer than the local ledger (version %d): restore first", remote, version)
	}

	tmp, err := os.CreateTemp("", "ct-ledger-*.db")
	if err != nil {
		return 0, fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath) // VACUUM INTO requires the destination not to exist
	defer os.Remove(tmpPath)

	if err := m.db.SnapshotTo(tmpPath); err != nil {
		return 0, fmt.Errorf("snapshotting store: %w", err)
	}

	uploadPath := tmpPath
	if m.encrypted() {
		encPath, err := m.encryptSnapshot(tmpPath)
		if err != nil {
			return 0, err
		}
		defer os.Remove(encPath)
		uploadPath = encPath
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}

	if err := m.vault.PutSnapshot(ctx, m.deviceID, f, info.Size(), version); err != nil {
		return 0, fmt.Errorf("uploading snapshot: %w", err)
	}

	m.logger.Info("ledger backed up", "version", version, "bytes", info.Size(), "encrypted", m.encrypted())
	return version, nil
}

// Restore downloads the vault snapshot and writes it to destPath, decrypting
// with passphrase when the snapshots are encrypted. Returns ErrNotFound when
// the vault holds no snapshot for this device.
func (m *BackupManager) Restore(ctx context.Context, passphrase, destPath string) error {
	version, err := m.vault.SnapshotVersion(ctx, m.deviceID)
	if err != nil {
		return fmt.Errorf("checking vault version: %w", err)
	}
	if version == 0 {
		return fmt.Errorf("no snapshot in vault for device %s: %w", m.deviceID, ErrNotFound)
	}

	tmp, err := os.CreateTemp("", "ct-restore-*.db")
	if err != nil {
		return fmt.Errorf("creating temp restore file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := m.vault.GetSnapshot(ctx, m.deviceID, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp restore file: %w", err)
	}

	if m.encrypted() {
		dc, err := m.encryptor.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
		if err := m.decryptTo(dc, tmpPath, destPath); err != nil {
			return err
		}
	} else {
		if err := copyFile(tmpPath, destPath); err != nil {
			return fmt.Errorf("writing restored store: %w", err)
		}
	}

	m.logger.Info("ledger restored", "version", version, "path", destPath)
	return nil
}

// encryptSnapshot encrypts the snapshot at srcPath into a fresh temp file
// and returns its path. The caller removes the file.
func (m *BackupManager) encryptSnapshot(srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer src.Close()

	enc, err := os.CreateTemp("", "ct-ledger-*.db.age")
	if err != nil {
		return "", fmt.Errorf("creating temp encrypted file: %w", err)
	}
	encPath := enc.Name()

	if err := m.encryptor.Encrypt(src, enc); err != nil {
		enc.Close()
		os.Remove(encPath)
		return "", fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		os.Remove(encPath)
		return "", fmt.Errorf("closing encrypted file: %w", err)
	}

	return encPath, nil
}

func (m *BackupManager) decryptTo(dc DecryptionContext, srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening downloaded snapshot: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating restored store: %w", err)
	}

	if err := dc.Decrypt(src, dest); err != nil {
		dest.Close()
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return dest.Close()
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
