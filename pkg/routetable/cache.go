package routetable

// RouteData identifies a single mirrored route. Two values describe the
// same route iff all three fields are equal; the cache never merges or
// partially updates entries, a changed field is a different route.
type RouteData struct {
	PrefixLen uint8  // significant bits of Dst, 0 to 32
	Dst       uint32 // destination network in host byte order, 0 with PrefixLen 0 is the default route
	OutIface  int32  // output interface index
}

// routeMap is the set of mirrored routes. RouteData is comparable, so the
// built-in map supplies hashing and full-field equality.
type routeMap struct {
	routes map[RouteData]struct{}
}

func newRouteMap() *routeMap {
	return &routeMap{routes: make(map[RouteData]struct{})}
}

func (m *routeMap) find(rd RouteData) bool {
	_, ok := m.routes[rd]
	return ok
}

// insert adds rd to the set. Returns false if an identical entry already
// exists, leaving the set unchanged.
func (m *routeMap) insert(rd RouteData) bool {
	if m.find(rd) {
		return false
	}
	m.routes[rd] = struct{}{}
	return true
}

// remove deletes the entry equal to rd. Returns false if no such entry
// exists.
func (m *routeMap) remove(rd RouteData) bool {
	if !m.find(rd) {
		return false
	}
	delete(m.routes, rd)
	return true
}

func (m *routeMap) clear() {
	m.routes = make(map[RouteData]struct{})
}

func (m *routeMap) size() int {
	return len(m.routes)
}
