// Package tun owns the virtual interface DNS queries are routed into.
//
// Open creates the device, Configure assigns its address and MTU, and Pump
// moves packets between the device and the fake-IP DNS engine.
package tun
