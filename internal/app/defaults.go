package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - S3BACKUP_CONFIG_PATH: config file location (default: ~/.config/s3backup.toml)
//   - S3BACKUP_HOME: base directory for s3backup data (default: ~/.local/share/s3backup)
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

// getConfigPath returns the config file path, checking S3BACKUP_CONFIG_PATH
// first, then falling back to ~/.config/s3backup.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("S3BACKUP_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "s3backup.toml"), nil
}

// getBaseDir returns the data directory, checking S3BACKUP_HOME first, then
// falling back to the XDG default ~/.local/share/s3backup.
func getBaseDir() (string, error) {
	if path := os.Getenv("S3BACKUP_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "s3backup"), nil
}
