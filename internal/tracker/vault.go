package tracker

import (
	"context"
	"io"
)

// Vault stores ledger snapshots off-device so the permanent tier survives
// storage resets. Snapshots stream through io.Reader/io.Writer to support
// large ledgers without loading them into memory.
type Vault interface {
	// PutSnapshot stores a ledger snapshot for a device. size is the number
	// of bytes that will be read from r. version is stored alongside the
	// snapshot for consistency checks.
	PutSnapshot(ctx context.Context, deviceID string, r io.Reader, size int64, version int64) error

	// GetSnapshot retrieves the latest snapshot for a device and writes it to w.
	GetSnapshot(ctx context.Context, deviceID string, w io.Writer) error

	// SnapshotVersion returns the stored snapshot version for a device.
	// Returns 0 if no snapshot has been stored.
	SnapshotVersion(ctx context.Context, deviceID string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
