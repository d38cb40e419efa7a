package tun

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// Configure sets the MTU and address of the interface and brings it up.
func Configure(name string, prefix netip.Prefix, mtu int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("failed to find interface %s: %w", name, err)
	}

	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("failed to set MTU %d on %s: %w", mtu, name, err)
	}

	addr := &netlink.Addr{IPNet: prefixToIPNet(prefix)}
	if err := netlink.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("failed to assign %s to %s: %w", prefix, name, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring up %s: %w", name, err)
	}

	log.Infof("Interface %s is up with address %s (mtu %d)", name, prefix, mtu)
	return nil
}

func prefixToIPNet(prefix netip.Prefix) *net.IPNet {
	addr := prefix.Addr()
	bits := 32
	if addr.Is6() {
		bits = 128
	}
	return &net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(prefix.Bits(), bits),
	}
}
