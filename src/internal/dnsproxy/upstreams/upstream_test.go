package upstreams

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
)

type recordingHandler struct {
	responses chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{responses: make(chan []byte, 16)}
}

func (h *recordingHandler) HandleResponse(raw []byte) {
	h.responses <- raw
}

func (h *recordingHandler) wait(t *testing.T) *dns.Msg {
	t.Helper()
	select {
	case raw := <-h.responses:
		msg := new(dns.Msg)
		if err := msg.Unpack(raw); err != nil {
			t.Fatalf("Delivered response is not a DNS message: %v", err)
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for upstream response")
		return nil
	}
}

func newSession(t *testing.T, id uint16, name string) *dnsproxy.Session {
	t.Helper()
	msg := &dnsproxy.Message{
		TransactionID:    id,
		Type:             dnsproxy.MessageQuery,
		RecursionDesired: true,
		Queries:          []dnsproxy.Query{{Name: name, Type: dns.TypeA}},
	}
	if err := msg.Build(); err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}
	s, err := dnsproxy.NewSession(msg)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s
}

func answer(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.IPv4(93, 184, 216, 34),
	})
	_ = w.WriteMsg(m)
}

func startUDPServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(answer),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestUDPResolver_Resolve(t *testing.T) {
	addr := startUDPServer(t)

	r, err := NewUDPResolver(addr, "", 0)
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	defer r.Stop()

	h := newRecordingHandler()
	r.SetHandler(h)

	r.Resolve(newSession(t, 0xbeef, "example.com"))
	msg := h.wait(t)

	if msg.Id != 0xbeef {
		t.Errorf("Expected transaction ID 0xbeef, got %04x", msg.Id)
	}
	if len(msg.Answer) != 1 {
		t.Fatalf("Expected 1 answer, got %d", len(msg.Answer))
	}
	if a := msg.Answer[0].(*dns.A).A.String(); a != "93.184.216.34" {
		t.Errorf("Expected 93.184.216.34, got %s", a)
	}
}

func TestUDPResolver_IdleSocketClosed(t *testing.T) {
	addr := startUDPServer(t)

	r, err := NewUDPResolver(addr, "", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	defer r.Stop()

	h := newRecordingHandler()
	r.SetHandler(h)
	r.Resolve(newSession(t, 1, "example.com"))
	h.wait(t)

	if !r.isConnected() {
		t.Fatal("Expected socket to be open after a query")
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.isConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.isConnected() {
		t.Error("Expected idle socket to be closed")
	}

	// A new query reopens the socket.
	r.Resolve(newSession(t, 2, "example.com"))
	if msg := h.wait(t); msg.Id != 2 {
		t.Errorf("Expected transaction ID 2, got %d", msg.Id)
	}
}

func TestUDPResolver_StopIsIdempotent(t *testing.T) {
	r, err := NewUDPResolver("127.0.0.1", "", 0)
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	r.Stop()
	r.Stop()
	r.Resolve(newSession(t, 1, "example.com"))
}

func TestDoHResolver_Resolve(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", req.Method)
		}
		if ct := req.Header.Get("Content-Type"); ct != dnsMessageContentType {
			t.Errorf("Expected content type %s, got %s", dnsMessageContentType, ct)
		}
		body, _ := io.ReadAll(req.Body)
		q := new(dns.Msg)
		if err := q.Unpack(body); err != nil {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		m := new(dns.Msg)
		m.SetReply(q)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.IPv4(1, 2, 3, 4),
		})
		out, _ := m.Pack()
		w.Header().Set("Content-Type", dnsMessageContentType)
		_, _ = w.Write(out)
	}))
	defer ts.Close()

	r := NewDoHResolver(ts.URL+"/dns-query", "")
	defer r.Stop()

	h := newRecordingHandler()
	r.SetHandler(h)
	r.Resolve(newSession(t, 0x4242, "example.com"))

	msg := h.wait(t)
	if msg.Id != 0x4242 {
		t.Errorf("Expected transaction ID 0x4242, got %04x", msg.Id)
	}
	if a := msg.Answer[0].(*dns.A).A.String(); a != "1.2.3.4" {
		t.Errorf("Expected 1.2.3.4, got %s", a)
	}
}

func TestDoHResolver_ErrorStatusDropped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	r := NewDoHResolver(ts.URL, "")
	h := newRecordingHandler()
	r.SetHandler(h)
	r.Resolve(newSession(t, 1, "example.com"))
	r.Stop()

	select {
	case <-h.responses:
		t.Error("Expected no response for a failed request")
	default:
	}
}

func TestParseResolver(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		domain  string
		wantErr bool
	}{
		{url: "udp://8.8.8.8:53", want: "udp://8.8.8.8:53"},
		{url: "udp://1.1.1.1", want: "udp://1.1.1.1:53"},
		{url: "udp://10.0.0.53:53?domain=Corp.Example", want: "udp://10.0.0.53:53?domain=corp.example", domain: "corp.example"},
		{url: "doh://dns.google/dns-query", want: "doh://dns.google/dns-query"},
		{url: "doh://dns.google/dns-query?domain=example.org", want: "doh://dns.google/dns-query?domain=example.org", domain: "example.org"},
		{url: "tcp://8.8.8.8:53", wantErr: true},
		{url: "::bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			r, err := ParseResolver(tt.url, Options{})
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %s", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer r.Stop()

			if r.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, r.String())
			}
			restricted, ok := r.(dnsproxy.DomainRestricted)
			if !ok {
				t.Fatal("Expected resolver to expose its domain restriction")
			}
			if restricted.GetDomain() != tt.domain {
				t.Errorf("Expected domain %q, got %q", tt.domain, restricted.GetDomain())
			}
		})
	}
}

func TestBaseResolver_MatchesDomain(t *testing.T) {
	tests := []struct {
		domain string
		query  string
		want   bool
	}{
		{"", "anything.example", true},
		{"example.com", "example.com", true},
		{"example.com", "www.example.com.", true},
		{"example.com", "notexample.com", false},
		{"example.com", "example.org", false},
	}

	for _, tt := range tests {
		b := &BaseResolver{Domain: tt.domain}
		if got := b.MatchesDomain(tt.query); got != tt.want {
			t.Errorf("MatchesDomain(%q) with domain %q = %v, want %v", tt.query, tt.domain, got, tt.want)
		}
	}
}
