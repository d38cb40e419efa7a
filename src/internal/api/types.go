package api

import (
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/networking"
	"github.com/maksimkurb/keen-relay/src/internal/stats"
)

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// StatusResponse returns service status information.
type StatusResponse struct {
	Version   VersionInfo    `json:"version"`
	StartedAt time.Time      `json:"started_at"`
	Stats     stats.Snapshot `json:"stats"`
	FakeIP    FakeIPStatus   `json:"fake_ip"`
	Listeners []string       `json:"listeners"`
	Tunnels   int            `json:"tunnels"`
	Config    *ConfigStatus  `json:"config,omitempty"`
}

// ConfigStatus reports whether the config file changed since startup.
type ConfigStatus struct {
	ActiveHash      string `json:"active_hash"`
	CurrentHash     string `json:"current_hash,omitempty"`
	RestartRequired bool   `json:"restart_required"`
}

// VersionInfo contains build version information.
type VersionInfo struct {
	Version string `json:"version"`
	Date    string `json:"date"`
	Commit  string `json:"commit"`
}

// FakeIPStatus describes the fake address pool.
type FakeIPStatus struct {
	Range          string `json:"range"`
	Used           int    `json:"used"`
	Size           int    `json:"size"`
	Mappings       int    `json:"mappings"`
	PendingQueries int    `json:"pending_queries"`
}

// FakeMappingInfo is one entry of the fake-IP table.
type FakeMappingInfo struct {
	FakeIP   string    `json:"fake_ip"`
	Domain   string    `json:"domain"`
	RealIP   string    `json:"real_ip,omitempty"`
	Rule     string    `json:"rule,omitempty"`
	ExpireAt time.Time `json:"expire_at"`
}

// FakeMappingsResponse returns the fake-IP table.
type FakeMappingsResponse struct {
	Mappings []FakeMappingInfo `json:"mappings"`
	Pending  int               `json:"pending_queries"`
}

// HealthCheckResponse returns health check results.
type HealthCheckResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// RedirectResponse returns the state of the iptables redirect rules.
type RedirectResponse struct {
	Enabled    bool                         `json:"enabled"`
	Components []networking.ComponentStatus `json:"components"`
}
