package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DeviceID: "test-device-abc",
		BaseDir:  "/home/user/.local/share/ct",
		LogDir:   "/home/user/.local/share/ct/log",
		Catalog: CatalogConfig{
			BaseURL:        "https://catalog.example.com",
			TimeoutSeconds: 15,
		},
		Sync: SyncConfig{StalenessDays: 3},
		Vaults: []VaultConfig{
			{Type: "s3", Name: "cloud", S3Bucket: "my-bucket", S3Prefix: "ct", S3Region: "eu-west-1"},
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/ct/keys/ct.pub",
			PrivateKeyPath: "/home/user/.local/share/ct/keys/ct.key",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/ct/data"},
		Images:   ImagesConfig{Dir: "/home/user/.local/share/ct/images"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, original.DeviceID)
	}
	if got.Catalog.BaseURL != original.Catalog.BaseURL {
		t.Errorf("Catalog.BaseURL = %q, want %q", got.Catalog.BaseURL, original.Catalog.BaseURL)
	}
	if got.Catalog.TimeoutSeconds != 15 {
		t.Errorf("Catalog.TimeoutSeconds = %d, want 15", got.Catalog.TimeoutSeconds)
	}
	if got.Sync.StalenessDays != 3 {
		t.Errorf("Sync.StalenessDays = %d, want 3", got.Sync.StalenessDays)
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[0].Type != "s3" || got.Vaults[0].S3Bucket != "my-bucket" {
		t.Errorf("Vaults[0] = %+v", got.Vaults[0])
	}
	if got.Vaults[1].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vaults[1].FSVaultRoot = %q, want %q", got.Vaults[1].FSVaultRoot, "/backup/vault")
	}
	if got.Encryption.PublicKeyPath != original.Encryption.PublicKeyPath {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", got.Encryption.PublicKeyPath, original.Encryption.PublicKeyPath)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Images.Dir != original.Images.Dir {
		t.Errorf("Images.Dir = %q, want %q", got.Images.Dir, original.Images.Dir)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("device-1", "/data/ct")

	if cfg.DeviceID != "device-1" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "device-1")
	}
	if cfg.BaseDir != "/data/ct" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/ct")
	}
	if cfg.LogDir != "/data/ct/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/ct/log")
	}
	if cfg.Catalog.TimeoutSeconds != 30 {
		t.Errorf("Catalog.TimeoutSeconds = %d, want 30", cfg.Catalog.TimeoutSeconds)
	}
	if cfg.Sync.StalenessDays != 7 {
		t.Errorf("Sync.StalenessDays = %d, want 7", cfg.Sync.StalenessDays)
	}
	if cfg.Database.DataDir != "/data/ct/data" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/ct/data")
	}
	if cfg.Images.Dir != "/data/ct/images" {
		t.Errorf("Images.Dir = %q, want %q", cfg.Images.Dir, "/data/ct/images")
	}
	if cfg.Encryption.PublicKeyPath != "/data/ct/keys/ct.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/ct/keys/ct.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/ct/keys/ct.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/ct/keys/ct.key")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ct.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ct.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ct.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DeviceID != "read-test" {
			t.Errorf("DeviceID = %q, want %q", got.DeviceID, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/ct.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
