package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LoadRunConfig reads a saved run configuration. A missing or corrupt file
// yields the defaults; fields that are absent keep their default value.
func LoadRunConfig(path string) RunConfig {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var stored struct {
		MaxCasesPerRun     *float64 `json:"maxCasesPerRun"`
		ConcurrentRequests *float64 `json:"concurrentRequests"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return cfg
	}
	if stored.MaxCasesPerRun != nil {
		cfg.MaxCasesPerRun = int(*stored.MaxCasesPerRun)
	}
	if stored.ConcurrentRequests != nil {
		cfg.ConcurrentRequests = int(*stored.ConcurrentRequests)
	}
	return cfg.Clamp()
}

// SaveRunConfig writes cfg to path, creating parent directories.
func SaveRunConfig(path string, cfg RunConfig) error {
	if path == "" {
		return errors.New("run config path is empty")
	}
	data, err := json.Marshal(cfg.Clamp())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
