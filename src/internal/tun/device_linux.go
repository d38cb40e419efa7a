//go:build linux

package tun

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Device is an open TUN interface without packet information headers.
type Device struct {
	file *os.File
	name string
}

// Open creates (or attaches to) the TUN interface name. Requires root or
// CAP_NET_ADMIN.
func Open(name string) (*Device, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open /dev/net/tun: %w", err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("invalid interface name %q: %w", name, err)
	}
	// IFF_NO_PI: packets carry no flags/proto prefix.
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)

	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("TUNSETIFF %s failed: %w", name, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set nonblocking mode: %w", err)
	}

	// A nonblocking fd lets the runtime poller wake Read on Close.
	return &Device{
		file: os.NewFile(uintptr(fd), "/dev/net/tun"),
		name: ifr.Name(),
	}, nil
}

// Name returns the kernel interface name.
func (d *Device) Name() string {
	return d.name
}

// ReadPacket reads one packet into buf. buf must hold at least MTU bytes.
func (d *Device) ReadPacket(buf []byte) (int, error) {
	return d.file.Read(buf)
}

// WritePacket writes one complete packet.
func (d *Device) WritePacket(pkt []byte) error {
	_, err := d.file.Write(pkt)
	return err
}

// Close releases the device. A pending ReadPacket returns an error.
func (d *Device) Close() error {
	return d.file.Close()
}
