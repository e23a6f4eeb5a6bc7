package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"ct-go/internal/tracker"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It keeps snapshots in maps, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name     string
	snapshot map[string][]byte // deviceID -> snapshot bytes
	version  map[string]int64  // deviceID -> version
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		snapshot: make(map[string][]byte),
		version:  make(map[string]int64),
	}
}

// PutSnapshot stores a snapshot for a device.
func (m *MemoryVault) PutSnapshot(_ context.Context, deviceID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot[deviceID] = data
	m.version[deviceID] = version
	return nil
}

// GetSnapshot retrieves the snapshot for a device.
func (m *MemoryVault) GetSnapshot(_ context.Context, deviceID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshot[deviceID]
	if !ok {
		return fmt.Errorf("no snapshot for device: %s", deviceID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns the stored version for a device, 0 when none.
func (m *MemoryVault) SnapshotVersion(_ context.Context, deviceID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version[deviceID], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}

// Compile-time check that MemoryVault implements tracker.Vault interface
var _ tracker.Vault = (*MemoryVault)(nil)
