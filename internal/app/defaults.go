package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CT_CONFIG_PATH: config file location (default: ~/.config/ct.toml)
//   - CT_HOME: base directory for ct data (default: ~/.local/share/ct)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking CT_CONFIG_PATH env var first,
// then falling back to the default ~/.config/ct.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CT_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ct.toml"), nil
}

// getBaseDir returns the base directory for ct data, checking CT_HOME env var first,
// then falling back to the XDG default ~/.local/share/ct.
func getBaseDir() (string, error) {
	if path := os.Getenv("CT_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ct"), nil
}
