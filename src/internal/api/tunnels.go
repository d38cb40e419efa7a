package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GetTunnels lists open tunnels.
// GET /api/v1/tunnels
func (h *Handler) GetTunnels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tunnels == nil {
		WriteUnavailable(w, "Tunnel server")
		return
	}
	writeJSONData(w, h.deps.Tunnels.Tunnels())
}

// CloseTunnel force-closes one tunnel.
// DELETE /api/v1/tunnels/{id}
func (h *Handler) CloseTunnel(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tunnels == nil {
		WriteUnavailable(w, "Tunnel server")
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteInvalidRequest(w, "Tunnel id must be a number")
		return
	}
	if !h.deps.Tunnels.CloseTunnel(id) {
		WriteNotFound(w, "Tunnel")
		return
	}
	writeNoContent(w)
}
