package routetable

// lookupByIP returns the entry whose prefix most specifically contains
// ip (host byte order). Ties on prefix length keep the first candidate
// seen; map iteration order makes that unspecified, which callers must
// not rely on.
func (m *routeMap) lookupByIP(ip uint32) (RouteData, bool) {
	var (
		best    RouteData
		bestLen = -1
	)

	for rd := range m.routes {
		if rd.PrefixLen == 0 {
			// Matches every address, same as the default route.
			// Considered only as a last resort in defaultRoute.
			continue
		}
		if rd.PrefixLen > 32 {
			continue
		}

		mask := ^uint32(0) << (32 - rd.PrefixLen)
		if int(rd.PrefixLen) > bestLen && ip&mask == rd.Dst&mask {
			best = rd
			bestLen = int(rd.PrefixLen)
		}
	}

	if bestLen < 0 {
		return RouteData{}, false
	}
	return best, true
}

// defaultRoute returns the catch-all entry, if one is cached.
func (m *routeMap) defaultRoute() (RouteData, bool) {
	for rd := range m.routes {
		if rd.Dst == 0 && rd.PrefixLen == 0 {
			return rd, true
		}
	}
	return RouteData{}, false
}
