package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

type fixedSelector struct {
	factory socket.AdapterFactory
}

func (s fixedSelector) SelectAdapterFactory(*socket.ConnectSession) socket.AdapterFactory {
	return s.factory
}

func startEchoServer(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr)
}

func TestServer_SOCKS5EndToEnd(t *testing.T) {
	echo := startEchoServer(t)

	q := queue.New("tunnel-test")
	defer q.Stop()

	srv := NewServer(Options{
		Executor: q,
		Selector: fixedSelector{factory: socket.NewDirectAdapterFactory("direct", q, nil, time.Second, nil)},
		Resolver: NewCachingResolver(nil, time.Second, time.Minute),
	})
	defer srv.Stop()

	if err := srv.Listen(&config.ListenerConfig{Type: config.ListenerSOCKS5, Address: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addrs := srv.ListenAddrs()
	if len(addrs) != 1 {
		t.Fatalf("Expected one listener, got %d", len(addrs))
	}

	client, err := net.DialTimeout("tcp4", addrs[0], time.Second)
	if err != nil {
		t.Fatalf("Failed to dial proxy: %v", err)
	}
	defer client.Close()
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))

	mustWrite(t, client, []byte{0x05, 0x01, 0x00})
	if reply := mustRead(t, client, 2); reply[0] != 0x05 || reply[1] != 0x00 {
		t.Fatalf("Unexpected method reply %x", reply)
	}

	ip := echo.IP.To4()
	mustWrite(t, client, []byte{0x05, 0x01, 0x00, 0x01, ip[0], ip[1], ip[2], ip[3], byte(echo.Port >> 8), byte(echo.Port)})
	if reply := mustRead(t, client, 10); reply[1] != 0x00 {
		t.Fatalf("Unexpected CONNECT reply %x", reply)
	}

	mustWrite(t, client, []byte("hello through the tunnel"))
	if got := mustRead(t, client, len("hello through the tunnel")); string(got) != "hello through the tunnel" {
		t.Errorf("Expected echo, got %q", got)
	}

	infos := srv.Tunnels()
	if len(infos) != 1 || infos[0].Status != StatusForwarding.String() || infos[0].Adapter != "direct" {
		t.Errorf("Unexpected tunnels: %+v", infos)
	}

	_ = client.Close()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected the tunnel to close after the client left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_ListenUnsupportedType(t *testing.T) {
	q := queue.New("tunnel-test")
	defer q.Stop()

	srv := NewServer(Options{Executor: q})
	if err := srv.Listen(&config.ListenerConfig{Type: "socks4", Address: "127.0.0.1:0"}); err == nil {
		t.Error("Expected error for unsupported listener type")
	}
}

func mustWrite(t *testing.T, conn net.Conn, data []byte) {
	t.Helper()
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func mustRead(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return buf
}

func TestCachingResolver(t *testing.T) {
	var calls atomic.Int32
	lookup := func(ctx context.Context, network, host string) ([]netip.Addr, error) {
		calls.Add(1)
		if host == "fail.example" {
			return nil, errors.New("no such host")
		}
		return []netip.Addr{netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("192.0.2.10")}, nil
	}
	r := NewCachingResolver(lookup, time.Second, time.Minute)

	resolve := func(host string) string {
		result := make(chan string, 1)
		r.Resolve(host, func(ip string) { result <- ip })
		select {
		case ip := <-result:
			return ip
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out resolving %s", host)
			return ""
		}
	}

	if ip := resolve("ok.example"); ip != "192.0.2.10" {
		t.Errorf("Expected first IPv4 address, got %q", ip)
	}
	if ip := resolve("ok.example"); ip != "192.0.2.10" {
		t.Errorf("Expected cached address, got %q", ip)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one lookup, got %d", calls.Load())
	}

	if ip := resolve("fail.example"); ip != "" {
		t.Errorf("Expected empty address on failure, got %q", ip)
	}
	resolve("fail.example")
	if calls.Load() != 3 {
		t.Errorf("Expected failures not to be cached, got %d lookups", calls.Load())
	}

	r.Flush()
	resolve("ok.example")
	if calls.Load() != 4 {
		t.Errorf("Expected lookup after flush, got %d lookups", calls.Load())
	}
}
