package testutil

import (
	"ct-go/internal/tracker"
	"ct-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() tracker.Vault {
	return vault.NewMemoryVault("test-vault")
}
