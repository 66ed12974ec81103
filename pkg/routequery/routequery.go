//go:build linux

// Package routequery asks the kernel directly which route it would pick
// for a destination, one RTM_GETROUTE round-trip per call. It is the
// authoritative but slower counterpart to the routetable mirror and is
// used to cross-check the mirror's answers.
package routequery

import (
	"net/netip"
)

// Route is the kernel's selected route for a queried destination.
type Route struct {
	Destination netip.Addr
	Gateway     netip.Addr // zero value when the destination is on-link
	IfIndex     int
	IfName      string
}

// Lookup returns the route the kernel would use to reach ip. Only IPv4
// destinations are supported.
func Lookup(ip netip.Addr) (Route, error) {
	return lookup(ip)
}
