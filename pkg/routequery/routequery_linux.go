//go:build linux

package routequery

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// queryKernelRoute issues an RTM_GETROUTE request for ip against the
// main table. Variable for mocking in tests.
var queryKernelRoute = func(ip netip.Addr) ([]rtnetlink.RouteMessage, error) {
	c, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	req := &rtnetlink.RouteMessage{
		Family: unix.AF_INET,
		Table:  unix.RT_TABLE_MAIN,
		Attributes: rtnetlink.RouteAttributes{
			Dst: ip.AsSlice(),
		},
	}

	return c.Route.Get(req)
}

func lookup(ip netip.Addr) (Route, error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return Route{}, fmt.Errorf("%s is not an IPv4 address", ip)
	}

	msgs, err := queryKernelRoute(ip)
	if err != nil {
		return Route{}, fmt.Errorf("querying kernel route for %s: %w", ip, err)
	}
	// RTM_GETROUTE without NLM_F_DUMP returns the single selected route.
	if len(msgs) != 1 {
		return Route{}, fmt.Errorf("kernel returned %d routes for %s, want 1", len(msgs), ip)
	}
	m := msgs[0]

	dst, ok := netip.AddrFromSlice(m.Attributes.Dst)
	if !ok {
		return Route{}, fmt.Errorf("kernel route for %s has no destination", ip)
	}

	route := Route{
		Destination: dst,
		IfIndex:     int(m.Attributes.OutIface),
	}
	if gw, ok := netip.AddrFromSlice(m.Attributes.Gateway); ok {
		route.Gateway = gw
	}

	intf, err := net.InterfaceByIndex(route.IfIndex)
	if err != nil {
		return Route{}, fmt.Errorf("resolving interface index %d: %w", route.IfIndex, err)
	}
	route.IfName = intf.Name

	return route, nil
}
