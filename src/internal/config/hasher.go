package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const hashCacheTTL = time.Minute

// ConfigHasher tracks the hash of the configuration file on disk and the
// hash of the configuration the running service was started with, so the
// API can report that a restart is needed.
type ConfigHasher struct {
	configPath string

	currentHash     string
	currentHashTime time.Time

	activeHash string

	mu  sync.RWMutex
	now func() time.Time
}

// NewConfigHasher creates a new config hasher
func NewConfigHasher(configPath string) *ConfigHasher {
	return &ConfigHasher{
		configPath: configPath,
		now:        time.Now,
	}
}

// GetCurrentConfigHash returns the cached hash of the config file,
// recalculating it when the cache has expired.
func (h *ConfigHasher) GetCurrentConfigHash() (string, error) {
	h.mu.RLock()
	if h.currentHash != "" && h.now().Sub(h.currentHashTime) < hashCacheTTL {
		hash := h.currentHash
		h.mu.RUnlock()
		return hash, nil
	}
	h.mu.RUnlock()

	return h.UpdateCurrentConfigHash()
}

// UpdateCurrentConfigHash reloads the config file and recalculates its hash.
func (h *ConfigHasher) UpdateCurrentConfigHash() (string, error) {
	cfg, err := LoadConfig(h.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	hash, err := CalculateHash(cfg)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentHash = hash
	h.currentHashTime = h.now()
	return hash, nil
}

// GetActiveConfigHash returns the hash recorded when the service started.
func (h *ConfigHasher) GetActiveConfigHash() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeHash
}

// SetActiveConfigHash records the hash of the configuration in use.
func (h *ConfigHasher) SetActiveConfigHash(hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeHash = hash
}

// CalculateHash returns the MD5 of the semantic configuration content.
// Formatting and comments in the file do not affect it.
func CalculateHash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config data: %w", err)
	}
	hash := md5.Sum(jsonBytes)
	return hex.EncodeToString(hash[:]), nil
}
