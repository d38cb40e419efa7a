package tun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/time/rate"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// PacketDevice is the packet I/O side of a Device.
type PacketDevice interface {
	ReadPacket(buf []byte) (int, error)
	WritePacket(pkt []byte) error
	Close() error
}

// PacketInput consumes raw packets read from the device. It returns false
// for packets it does not handle.
type PacketInput interface {
	Input(data []byte, family int) bool
}

// DropObserver is notified about every packet the input refused.
type DropObserver interface {
	OnPacketDropped()
}

// Pump copies packets from the device into the input and writes engine
// output back to the device.
type Pump struct {
	dev      PacketDevice
	input    PacketInput
	family   int
	mtu      int
	observer DropObserver

	dropLog  rate.Sometimes
	received atomic.Uint64
	dropped  atomic.Uint64
	written  atomic.Uint64
}

// NewPump creates a pump. Packets are tagged with family when handed to the
// input. observer may be nil.
func NewPump(dev PacketDevice, input PacketInput, family, mtu int, observer DropObserver) *Pump {
	return &Pump{
		dev:      dev,
		input:    input,
		family:   family,
		mtu:      mtu,
		observer: observer,
		dropLog:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Run reads packets until ctx is done or the device fails. Cancelling ctx
// closes the device.
func (p *Pump) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.dev.Close()
		case <-done:
		}
	}()

	buf := make([]byte, p.mtu)
	for {
		n, err := p.dev.ReadPacket(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read from tun device: %w", err)
		}
		if n == 0 {
			continue
		}
		p.received.Add(1)

		// The engine keeps the packet past this call.
		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		if !p.input.Input(pkt, p.family) {
			p.drop(pkt)
		}
	}
}

// Output writes engine packets to the device. It matches
// dnsproxy.OutputFunc.
func (p *Pump) Output(packets [][]byte, families []int) {
	for _, pkt := range packets {
		if err := p.dev.WritePacket(pkt); err != nil {
			if !errors.Is(err, os.ErrClosed) {
				log.Debugf("Failed to write packet to tun device: %v", err)
			}
			continue
		}
		p.written.Add(1)
	}
}

func (p *Pump) drop(pkt []byte) {
	p.dropped.Add(1)
	if p.observer != nil {
		p.observer.OnPacketDropped()
	}
	if log.IsVerbose() {
		p.dropLog.Do(func() {
			log.Debugf("Dropping packet not addressed to the DNS server: %s", Describe(pkt))
		})
	}
}

// Received returns the number of packets read from the device.
func (p *Pump) Received() uint64 { return p.received.Load() }

// Dropped returns the number of packets the input refused.
func (p *Pump) Dropped() uint64 { return p.dropped.Load() }

// Written returns the number of packets written to the device.
func (p *Pump) Written() uint64 { return p.written.Load() }

// Describe renders a one-line summary of a raw IP packet for logs.
func Describe(pkt []byte) string {
	if len(pkt) == 0 {
		return "empty packet"
	}

	var decoded gopacket.Packet
	switch pkt[0] >> 4 {
	case 4:
		decoded = gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.NoCopy)
	case 6:
		decoded = gopacket.NewPacket(pkt, layers.LayerTypeIPv6, gopacket.NoCopy)
	default:
		return fmt.Sprintf("non-IP packet (%d bytes)", len(pkt))
	}

	network := decoded.NetworkLayer()
	if network == nil {
		return fmt.Sprintf("malformed IP packet (%d bytes)", len(pkt))
	}
	src, dst := network.NetworkFlow().Endpoints()

	if transport := decoded.TransportLayer(); transport != nil {
		sport, dport := transport.TransportFlow().Endpoints()
		return fmt.Sprintf("%s %s:%s -> %s:%s (%d bytes)",
			transport.LayerType(), src, sport, dst, dport, len(pkt))
	}
	return fmt.Sprintf("%s %s -> %s (%d bytes)", network.LayerType(), src, dst, len(pkt))
}
