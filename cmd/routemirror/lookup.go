//go:build linux

package main

import (
	"errors"
	"net"
	"net/netip"
)

// lookupDst parses destination as an IPv4 literal, or resolves it as a
// hostname and returns its first IPv4 address.
func lookupDst(destination string) (netip.Addr, error) {
	// check if destination is an IP address
	parsedIP, err := netip.ParseAddr(destination)

	// resolve IP if destination is a hostname
	if err != nil {
		lookup, err := net.LookupHost(destination)
		if err != nil {
			return parsedIP, errors.New("could not resolve " + destination)
		}

		// find the first IPv4 address
		for _, record := range lookup {
			ip, err := netip.ParseAddr(record)
			if err != nil {
				continue
			}
			if ip.Unmap().Is4() {
				parsedIP = ip
				break
			}
		}
	}

	parsedIP = parsedIP.Unmap()
	switch {
	case !parsedIP.IsValid():
		return parsedIP, errors.New("could not resolve " + destination)
	case !parsedIP.Is4():
		return parsedIP, errors.New(destination + " has no IPv4 address")
	}

	return parsedIP, nil
}
