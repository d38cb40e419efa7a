//go:build !linux

package tun

import "errors"

var errUnsupported = errors.New("tun devices are only supported on linux")

// Device is unavailable on this platform.
type Device struct{}

func Open(name string) (*Device, error) {
	return nil, errUnsupported
}

func (d *Device) Name() string { return "" }
func (d *Device) ReadPacket(buf []byte) (int, error) { return 0, errUnsupported }
func (d *Device) WritePacket(pkt []byte) error { return errUnsupported }
func (d *Device) Close() error { return nil }
