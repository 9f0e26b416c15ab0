package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for s3backup.
type Config struct {
	MachineName string `toml:"machine_name"`
	BaseDir     string `toml:"base_dir"`
	LogDir      string `toml:"log_dir"`
	// DestLocation receives archives before upload and downloads on restore.
	DestLocation              string `toml:"dest_location"`
	DeleteArchiveWhenFinished bool   `toml:"delete_archive_when_finished"`
	Compression               string `toml:"compression"`    // "none", "gz", "bz2" (default) or "zip"
	HashAlgorithm             string `toml:"hash_algorithm"` // "SHA512" (default), "SHA256" or "MD5"
	HashLogDir                string `toml:"hash_log_dir,omitempty"`
	// UploadCatalog uploads the run history database after mutating runs.
	UploadCatalog bool     `toml:"upload_catalog"`
	Ignore        []string `toml:"ignore,omitempty"`
	IgnoreFile    string   `toml:"ignore_file,omitempty"`

	Lists      ListsConfig      `toml:"lists"`
	Store      StoreConfig      `toml:"store"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Restore    RestoreConfig    `toml:"restore"`
}

// ListsConfig holds the file list path of each schedule.
type ListsConfig struct {
	Daily   string `toml:"daily"`
	Weekly  string `toml:"weekly"`
	Monthly string `toml:"monthly"`
}

// StoreConfig represents configuration for the object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "s3", "filesystem" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // non-AWS endpoint, implies path-style addressing
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// EncryptionConfig controls archive encryption.
type EncryptionConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "aes-cbc" (default) or "age"
	// Passphrase may be left empty; it is then read from S3BACKUP_PASSPHRASE
	// or prompted for.
	Passphrase string `toml:"passphrase,omitempty"`

	// aes-cbc fields
	KeyDerivation string `toml:"key_derivation,omitempty"` // "sha512" (default) or "pbkdf2"
	Salt          string `toml:"salt,omitempty"`           // pbkdf2 salt
	IV            string `toml:"iv,omitempty"`             // hex; empty means all zero
	PieceSize     int    `toml:"piece_size,omitempty"`

	// age fields
	AgeWorkFactor int `toml:"age_work_factor,omitempty"`
}

// DatabaseConfig represents configuration for the run history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// RestoreConfig controls where and how archives are restored.
type RestoreConfig struct {
	Root        string `toml:"root"`
	RequireHash bool   `toml:"require_hash"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(machineName, baseDir string) *Config {
	return &Config{
		MachineName:   machineName,
		BaseDir:       baseDir,
		LogDir:        filepath.Join(baseDir, "log"),
		DestLocation:  filepath.Join(baseDir, "archives"),
		Compression:   "bz2",
		HashAlgorithm: "SHA512",
		HashLogDir:    filepath.Join(baseDir, "hashes"),
		UploadCatalog: true,
		Lists: ListsConfig{
			Daily:   filepath.Join(baseDir, "lists", "daily.txt"),
			Weekly:  filepath.Join(baseDir, "lists", "weekly.txt"),
			Monthly: filepath.Join(baseDir, "lists", "monthly.txt"),
		},
		Store: StoreConfig{
			Type:     "s3",
			S3Bucket: "s3backup-" + strings.ToLower(machineName),
			S3Region: "us-east-1",
		},
		Encryption: EncryptionConfig{
			Type:          "aes-cbc",
			KeyDerivation: "sha512",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Restore: RestoreConfig{
			Root: "/",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to path with owner-only permissions, since
// it may hold credentials.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
