package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

// GetFakeMappings lists the fake-IP table ordered by address.
// GET /api/v1/dns/fake
func (h *Handler) GetFakeMappings(w http.ResponseWriter, r *http.Request) {
	if h.deps.DNS == nil {
		WriteUnavailable(w, "DNS server")
		return
	}

	mappings, pending := h.deps.DNS.Snapshot()
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].Address < mappings[j].Address
	})

	response := FakeMappingsResponse{
		Mappings: make([]FakeMappingInfo, 0, len(mappings)),
		Pending:  pending,
	}
	for _, m := range mappings {
		response.Mappings = append(response.Mappings, mappingInfo(m))
	}

	writeJSONData(w, response)
}

// GetFakeMapping resolves one fake address back to its domain.
// GET /api/v1/dns/fake/{ip}
func (h *Handler) GetFakeMapping(w http.ResponseWriter, r *http.Request) {
	if h.deps.DNS == nil {
		WriteUnavailable(w, "DNS server")
		return
	}

	addr, err := packet.ParseAddress(chi.URLParam(r, "ip"))
	if err != nil {
		WriteInvalidRequest(w, "Invalid IPv4 address: "+err.Error())
		return
	}
	if !h.deps.DNS.IsFakeIP(addr) {
		WriteInvalidRequest(w, addr.String()+" is outside the fake range")
		return
	}

	session := h.deps.DNS.LookupFakeIP(addr)
	if session == nil {
		WriteNotFound(w, "Mapping for "+addr.String())
		return
	}

	m := dnsproxy.FakeMapping{
		Address:  addr,
		Domain:   session.Domain(),
		RealIP:   session.RealIP,
		ExpireAt: session.ExpireAt,
	}
	if session.MatchedRule != nil {
		m.Rule = session.MatchedRule.String()
	}
	writeJSONData(w, mappingInfo(m))
}

func mappingInfo(m dnsproxy.FakeMapping) FakeMappingInfo {
	info := FakeMappingInfo{
		FakeIP:   m.Address.String(),
		Domain:   m.Domain,
		Rule:     m.Rule,
		ExpireAt: m.ExpireAt,
	}
	if m.RealIP != 0 {
		info.RealIP = m.RealIP.String()
	}
	return info
}
