package vault

import (
	"context"
	"fmt"

	"ct-go/internal/config"
	"ct-go/internal/tracker"
)

// NewVaultFromConfig creates a vault backend from its config entry.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (tracker.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "filesystem":
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	case "s3":
		return NewS3Vault(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
