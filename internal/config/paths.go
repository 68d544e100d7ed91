package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultStepTimeout = 60 * time.Second
	defaultToolTimeout = 30 * time.Second
)

// PaulaPath returns the root directory for Paula data.
// It uses $PAULA_PATH if set, otherwise defaults to ~/.paula.
func PaulaPath() string {
	if v := os.Getenv("PAULA_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".paula")
	}
	return filepath.Join(home, ".paula")
}

// ConfigPath returns the path to the Paula config file.
func ConfigPath() string {
	return filepath.Join(PaulaPath(), "config.jsonc")
}

// DotenvPath returns the path to the Paula .env file.
func DotenvPath() string {
	return filepath.Join(PaulaPath(), ".env")
}
