package tun

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

type fakeDevice struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (d *fakeDevice) ReadPacket(buf []byte) (int, error) {
	select {
	case pkt := <-d.in:
		return copy(buf, pkt), nil
	case <-d.closed:
		return 0, os.ErrClosed
	}
}

func (d *fakeDevice) WritePacket(pkt []byte) error {
	select {
	case <-d.closed:
		return os.ErrClosed
	default:
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, pkt)
	return nil
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

type fakeInput struct {
	mu       sync.Mutex
	accepted [][]byte
	families []int
	seen     chan struct{}
}

func (f *fakeInput) Input(data []byte, family int) bool {
	defer func() { f.seen <- struct{}{} }()

	port, ok := packet.PeekDestinationPort(data)
	if !ok || port != 53 {
		return false
	}
	f.mu.Lock()
	f.accepted = append(f.accepted, data)
	f.families = append(f.families, family)
	f.mu.Unlock()
	return true
}

type countingObserver struct {
	mu    sync.Mutex
	drops int
}

func (o *countingObserver) OnPacketDropped() {
	o.mu.Lock()
	o.drops++
	o.mu.Unlock()
}

func udpPacket(t *testing.T, dstPort packet.Port) []byte {
	t.Helper()
	return buildPacket(t, packet.NewUDPPacket(
		packet.MustParseAddress("10.0.0.5"), 40000,
		packet.MustParseAddress("10.77.0.2"), dstPort,
		[]byte("payload"),
	))
}

func buildPacket(t *testing.T, p *packet.IPPacket) []byte {
	t.Helper()
	data, err := p.Build()
	if err != nil {
		t.Fatalf("failed to build packet: %v", err)
	}
	return data
}

func waitSeen(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for packet %d", i+1)
		}
	}
}

func TestPump_Run(t *testing.T) {
	dev := newFakeDevice()
	input := &fakeInput{seen: make(chan struct{}, 16)}
	observer := &countingObserver{}
	pump := NewPump(dev, input, 2, 1500, observer)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- pump.Run(ctx) }()

	dns := udpPacket(t, 53)
	dev.in <- dns
	dev.in <- udpPacket(t, 8080)
	dev.in <- []byte{}
	waitSeen(t, input.seen, 2)

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Expected nil error after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if pump.Received() != 2 {
		t.Errorf("Expected 2 received packets, got %d", pump.Received())
	}
	if pump.Dropped() != 1 {
		t.Errorf("Expected 1 dropped packet, got %d", pump.Dropped())
	}
	if observer.drops != 1 {
		t.Errorf("Expected observer to see 1 drop, got %d", observer.drops)
	}
	if len(input.accepted) != 1 || string(input.accepted[0]) != string(dns) {
		t.Fatalf("Expected the DNS packet to be accepted, got %v", input.accepted)
	}
	if input.families[0] != 2 {
		t.Errorf("Expected family 2, got %d", input.families[0])
	}
}

func TestPump_RunCopiesPackets(t *testing.T) {
	dev := newFakeDevice()
	input := &fakeInput{seen: make(chan struct{}, 16)}
	pump := NewPump(dev, input, 2, 1500, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	first := udpPacket(t, 53)
	dev.in <- first
	dev.in <- buildPacket(t, packet.NewUDPPacket(
		packet.MustParseAddress("10.0.0.6"), 40001,
		packet.MustParseAddress("10.77.0.2"), 53,
		[]byte("another payload"),
	))
	waitSeen(t, input.seen, 2)

	input.mu.Lock()
	defer input.mu.Unlock()
	if string(input.accepted[0]) != string(first) {
		t.Error("First packet was overwritten by the next read")
	}
}

func TestPump_RunDeviceError(t *testing.T) {
	dev := newFakeDevice()
	pump := NewPump(dev, &fakeInput{seen: make(chan struct{}, 1)}, 2, 1500, nil)

	dev.Close()
	err := pump.Run(context.Background())
	if err == nil {
		t.Fatal("Expected error when the device fails")
	}
	if !strings.Contains(err.Error(), "failed to read from tun device") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPump_Output(t *testing.T) {
	dev := newFakeDevice()
	pump := NewPump(dev, &fakeInput{}, 2, 1500, nil)

	pump.Output([][]byte{udpPacket(t, 53), udpPacket(t, 54)}, []int{2, 2})
	if pump.Written() != 2 || len(dev.written) != 2 {
		t.Fatalf("Expected 2 written packets, got %d", len(dev.written))
	}

	dev.Close()
	pump.Output([][]byte{udpPacket(t, 53)}, []int{2})
	if pump.Written() != 2 {
		t.Errorf("Expected failed write not to be counted, got %d", pump.Written())
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		pkt      []byte
		contains []string
	}{
		{
			name:     "UDP packet",
			pkt:      udpPacket(t, 53),
			contains: []string{"UDP", "10.0.0.5:40000", "10.77.0.2:53"},
		},
		{
			name:     "Empty packet",
			pkt:      nil,
			contains: []string{"empty packet"},
		},
		{
			name:     "Non-IP packet",
			pkt:      []byte{0x10, 0x00},
			contains: []string{"non-IP packet (2 bytes)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.pkt)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Expected %q to contain %q", got, want)
				}
			}
		})
	}
}
