package api

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/networking"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/stats"
	"github.com/maksimkurb/keen-relay/src/internal/tunnel"
)

// TunnelManager lists and closes open tunnels.
type TunnelManager interface {
	Tunnels() []tunnel.Info
	CloseTunnel(id uint64) bool
	ListenAddrs() []string
}

// FakeIPTable exposes the DNS engine's fake-address map.
type FakeIPTable interface {
	Snapshot() (mappings []dnsproxy.FakeMapping, pending int)
	LookupFakeIP(addr packet.Address) *dnsproxy.Session
	IsFakeIP(addr packet.Address) bool
}

// AddressPool reports fake pool usage.
type AddressPool interface {
	Prefix() netip.Prefix
	Used() int
	Size() int
}

// RedirectChecker reports the state of the iptables redirect rules.
type RedirectChecker interface {
	Check() ([]networking.ComponentStatus, error)
}

// ConfigHashProvider compares the config on disk with the one in use.
type ConfigHashProvider interface {
	GetCurrentConfigHash() (string, error)
	GetActiveConfigHash() string
}

// Dependencies are the running components the API reads from. Nil fields
// make the corresponding endpoints report their component as unavailable.
type Dependencies struct {
	Tunnels  TunnelManager
	DNS      FakeIPTable
	Pool     AddressPool
	Stats    *stats.Collector
	Events   *stats.Hub
	Redirect RedirectChecker
	Config   ConfigHashProvider

	StartedAt time.Time
}

// Handler manages all API endpoints and dependencies.
type Handler struct {
	deps Dependencies
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
