// Package packet encodes and decodes IPv4 packets carrying UDP segments.
//
// Only IPv4 without fragmentation is handled. TCP and ICMP packets are
// recognised so callers can route them, but their segments are not decoded.
package packet
