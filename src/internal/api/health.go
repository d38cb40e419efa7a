package api

import (
	"fmt"
	"net/http"

	"github.com/maksimkurb/keen-relay/src/internal/networking"
)

// CheckHealth reports whether the running components are healthy.
// GET /health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Healthy: true,
		Checks:  make(map[string]CheckResult),
	}

	if h.deps.Tunnels != nil {
		listeners := h.deps.Tunnels.ListenAddrs()
		response.Checks["listeners"] = CheckResult{
			Passed:  len(listeners) > 0,
			Message: fmt.Sprintf("%d listener(s) active", len(listeners)),
		}
		if len(listeners) == 0 {
			response.Healthy = false
		}
	}

	if h.deps.Pool != nil {
		used, size := h.deps.Pool.Used(), h.deps.Pool.Size()
		passed := used < size
		response.Checks["fake_ip_pool"] = CheckResult{
			Passed:  passed,
			Message: fmt.Sprintf("%d of %d addresses in use", used, size),
		}
		if !passed {
			response.Healthy = false
		}
	}

	if h.deps.Redirect != nil {
		response.Checks["redirect"] = h.checkRedirect()
		if !response.Checks["redirect"].Passed {
			response.Healthy = false
		}
	}

	status := http.StatusOK
	if !response.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (h *Handler) checkRedirect() CheckResult {
	statuses, err := h.deps.Redirect.Check()
	if err != nil {
		return CheckResult{Passed: false, Message: "Failed to check iptables rules: " + err.Error()}
	}

	for _, s := range statuses {
		if s.OK() {
			continue
		}
		if s.ShouldExist {
			return CheckResult{Passed: false, Message: "Missing: " + s.Command}
		}
		return CheckResult{Passed: false, Message: "Unexpected: " + s.Command}
	}
	return CheckResult{Passed: true, Message: fmt.Sprintf("%d component(s) in place", len(statuses))}
}

// GetRedirect returns the state of every redirect component.
// GET /api/v1/redirect
func (h *Handler) GetRedirect(w http.ResponseWriter, r *http.Request) {
	if h.deps.Redirect == nil {
		writeJSONData(w, RedirectResponse{Enabled: false, Components: []networking.ComponentStatus{}})
		return
	}

	statuses, err := h.deps.Redirect.Check()
	if err != nil {
		WriteInternalError(w, "Failed to check iptables rules: "+err.Error())
		return
	}
	writeJSONData(w, RedirectResponse{Enabled: true, Components: statuses})
}
