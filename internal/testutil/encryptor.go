package testutil

import (
	"ct-go/internal/encryption"
	"ct-go/internal/tracker"
)

// NewTestEncryptor creates a deterministic encryptor for testing.
func NewTestEncryptor() tracker.Encryptor {
	return encryption.NewTestEncryptor()
}
