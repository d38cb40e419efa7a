package socket_test

import (
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/mocks"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

func TestDirectAdapter_Lifecycle(t *testing.T) {
	raw := &mocks.MockRawSocket{}
	a := socket.NewDirectAdapter(raw, nil)
	d := &recordingDelegate{}
	a.SetDelegate(d)

	if a.Status() != socket.StatusInvalid || !a.IsDisconnected() {
		t.Fatalf("Expected a fresh adapter to be invalid, got %s", a.Status())
	}

	session := socket.NewConnectSession("example.com", 443)
	session.IPAddress = "93.184.216.34"
	a.Open(session)

	if a.Status() != socket.StatusConnecting {
		t.Errorf("Expected connecting, got %s", a.Status())
	}
	if raw.ConnectHost != "93.184.216.34" || raw.ConnectPort != 443 {
		t.Errorf("Expected connect to the resolved address, got %s:%d", raw.ConnectHost, raw.ConnectPort)
	}

	raw.CompleteConnect()
	if a.Status() != socket.StatusEstablished {
		t.Errorf("Expected established, got %s", a.Status())
	}
	if len(d.connected) != 1 || len(d.ready) != 1 {
		t.Fatalf("Expected connect and ready signals, got %d/%d", len(d.connected), len(d.ready))
	}

	a.ReadData()
	raw.Deliver([]byte("hello"))
	a.Write([]byte("world"))
	raw.CompleteWrite()
	if len(d.reads) != 1 || len(d.writes) != 1 {
		t.Errorf("Expected forwarded read and write, got %d/%d", len(d.reads), len(d.writes))
	}

	a.Disconnect(nil)
	a.Disconnect(nil)
	if len(d.disconnected) != 1 || a.Status() != socket.StatusClosed {
		t.Errorf("Expected one disconnect and closed status, got %d %s", len(d.disconnected), a.Status())
	}
	if session.DisconnectedBy != socket.SideAdapter {
		t.Errorf("Expected adapter to be recorded as closing side")
	}
}

func TestDirectAdapter_ConnectError(t *testing.T) {
	raw := &mocks.MockRawSocket{
		ConnectFunc: func(string, packet.Port, *tls.Config) error {
			return errors.New("no address to connect to")
		},
	}
	a := socket.NewDirectAdapter(raw, nil)
	d := &recordingDelegate{}
	a.SetDelegate(d)

	session := socket.NewConnectSession("unresolvable.example", 80)
	a.Open(session)

	if len(d.disconnected) != 1 {
		t.Fatalf("Expected the failed connect to disconnect, got %d", len(d.disconnected))
	}
	if len(d.ready) != 0 || len(d.connected) != 0 {
		t.Error("Expected no ready or connect signals")
	}
	if session.Err == nil {
		t.Error("Expected the connect error on the session")
	}
}

func TestDirectAdapter_CancelledBeforeOpen(t *testing.T) {
	raw := &mocks.MockRawSocket{}
	a := socket.NewDirectAdapter(raw, nil)
	a.SetDelegate(&recordingDelegate{})

	a.ForceDisconnect(nil)
	a.Open(socket.NewConnectSession("1.2.3.4", 80))
	if raw.ConnectCalls != 0 {
		t.Error("Expected no connect after cancellation")
	}
}

func TestRejectAdapter(t *testing.T) {
	exec := mocks.NewManualExecutor()
	a := socket.NewRejectAdapter(exec, 2*time.Second, nil)
	d := &recordingDelegate{}
	a.SetDelegate(d)

	session := socket.NewConnectSession("ads.example", 443)
	a.Open(session)
	exec.Advance(time.Second)
	if len(d.disconnected) != 0 {
		t.Fatal("Expected reject to wait for its delay")
	}

	exec.Advance(time.Second)
	if len(d.disconnected) != 1 {
		t.Fatalf("Expected one disconnect after the delay, got %d", len(d.disconnected))
	}
	if !errors.Is(session.Err, socket.ErrRejected) {
		t.Errorf("Expected ErrRejected, got %v", session.Err)
	}
	if len(d.ready) != 0 {
		t.Error("Reject adapters never become ready")
	}
}

func TestRejectAdapter_ForceDisconnectCancelsTimer(t *testing.T) {
	exec := mocks.NewManualExecutor()
	a := socket.NewRejectAdapter(exec, time.Second, nil)
	d := &recordingDelegate{}
	a.SetDelegate(d)
	a.Open(socket.NewConnectSession("ads.example", 443))

	a.ForceDisconnect(nil)
	exec.Advance(2 * time.Second)
	if len(d.disconnected) != 1 {
		t.Errorf("Expected exactly one disconnect, got %d", len(d.disconnected))
	}
	if exec.ScheduledCount() != 0 {
		t.Error("Expected the reject timer to be cancelled")
	}
}

func TestNewAdapterFactories(t *testing.T) {
	cfg := &config.Config{
		Adapters: []*config.AdapterConfig{
			{Name: "slow-reject", Type: config.AdapterReject, RejectDelayMs: 500},
		},
	}
	exec := mocks.NewManualExecutor()
	factories, err := socket.NewAdapterFactories(cfg.GetAdapters(), exec, nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, name := range []string{"slow-reject", config.DefaultAdapterName, config.RejectAdapterName} {
		f, ok := factories[name]
		if !ok {
			t.Errorf("Expected factory %s", name)
			continue
		}
		if f.Name() != name {
			t.Errorf("Expected factory name %s, got %s", name, f.Name())
		}
	}

	if _, ok := factories[config.DefaultAdapterName].NewAdapter(nil).(*socket.DirectAdapter); !ok {
		t.Error("Expected the built-in direct adapter")
	}
	if _, ok := factories["slow-reject"].NewAdapter(nil).(*socket.RejectAdapter); !ok {
		t.Error("Expected a reject adapter")
	}

	_, err = socket.NewAdapterFactories([]*config.AdapterConfig{{Name: "x", Type: "socks5"}}, exec, nil, nil)
	if err == nil {
		t.Error("Expected error for unsupported adapter type")
	}
}
