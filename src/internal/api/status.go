package api

import (
	"net/http"

	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/stats"
)

var (
	// Version information set via ldflags at build time
	Version = "dev"
	Date    = "n/a"
	Commit  = "n/a"
)

// GetStatus returns service status information.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version: VersionInfo{
			Version: Version,
			Date:    Date,
			Commit:  Commit,
		},
		StartedAt: h.deps.StartedAt,
		Listeners: []string{},
	}

	if h.deps.Stats != nil {
		response.Stats = h.deps.Stats.Snapshot()
	} else {
		response.Stats = stats.Snapshot{}
	}

	if h.deps.Pool != nil {
		response.FakeIP.Range = h.deps.Pool.Prefix().String()
		response.FakeIP.Used = h.deps.Pool.Used()
		response.FakeIP.Size = h.deps.Pool.Size()
	}
	if h.deps.DNS != nil {
		mappings, pending := h.deps.DNS.Snapshot()
		response.FakeIP.Mappings = len(mappings)
		response.FakeIP.PendingQueries = pending
	}

	if h.deps.Tunnels != nil {
		response.Listeners = h.deps.Tunnels.ListenAddrs()
		response.Tunnels = len(h.deps.Tunnels.Tunnels())
	}

	if h.deps.Config != nil {
		status := &ConfigStatus{ActiveHash: h.deps.Config.GetActiveConfigHash()}
		if current, err := h.deps.Config.GetCurrentConfigHash(); err != nil {
			log.Warnf("Failed to hash config file: %v", err)
		} else {
			status.CurrentHash = current
			status.RestartRequired = status.ActiveHash != "" && current != status.ActiveHash
		}
		response.Config = status
	}

	writeJSONData(w, response)
}
