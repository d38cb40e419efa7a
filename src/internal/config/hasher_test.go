package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestCalculateHash_Deterministic(t *testing.T) {
	cfg := &Config{DNS: &DNSConfig{Upstreams: []string{"udp://1.1.1.1:53"}}}

	hash1, err := CalculateHash(cfg)
	if err != nil {
		t.Fatalf("Failed to calculate hash: %v", err)
	}
	hash2, _ := CalculateHash(cfg)
	if hash1 != hash2 || hash1 == "" {
		t.Errorf("Hashes should be identical and non-empty, got %q and %q", hash1, hash2)
	}

	cfg.DNS.FakeIPTTLSec = 10
	hash3, _ := CalculateHash(cfg)
	if hash3 == hash1 {
		t.Error("Hash should change when configuration changes")
	}
}

func TestConfigHasher_CachesUntilExpiry(t *testing.T) {
	path := writeConfig(t, validTOML)

	now := time.Unix(1000, 0)
	h := NewConfigHasher(path)
	h.now = func() time.Time { return now }

	first, err := h.GetCurrentConfigHash()
	if err != nil {
		t.Fatalf("Failed to get hash: %v", err)
	}
	h.SetActiveConfigHash(first)

	edited := strings.Replace(validTOML, "fake_ip_ttl_sec = 120", "fake_ip_ttl_sec = 60", 1)
	if err := os.WriteFile(path, []byte(edited), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	cached, _ := h.GetCurrentConfigHash()
	if cached != first {
		t.Error("Expected cached hash before expiry")
	}

	now = now.Add(hashCacheTTL)
	updated, err := h.GetCurrentConfigHash()
	if err != nil {
		t.Fatalf("Failed to get hash: %v", err)
	}
	if updated == first {
		t.Error("Expected hash to change after the file changed and the cache expired")
	}
	if h.GetActiveConfigHash() != first {
		t.Error("Active hash should not change")
	}
}
