package geoip

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mmdb")
	if err := os.WriteFile(path, []byte("not a maxmind database"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Error("Expected error for invalid database")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("Expected error for missing database")
	}
}

func TestNilReader(t *testing.T) {
	var r *Reader

	if got := r.Country(netip.MustParseAddr("8.8.8.8")); got != "" {
		t.Errorf("Expected empty country, got %q", got)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	var lookup Lookup = r
	if lookup.Country(netip.Addr{}) != "" {
		t.Error("Expected empty country for invalid address")
	}
}
