//go:build linux

package routetable

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Table mirrors the kernel routing table for one or more consumers. The
// host shares a single Table across its consumers; each consumer brackets
// its use with Register and Unregister, and the first/last of those pays
// for setup and teardown.
//
// All methods are safe for concurrent use.
type Table struct {
	mu            sync.Mutex
	registerCount int
	notifier      Notifier
	routes        *routeMap

	dialNotifier func() (Notifier, error)
	dumper       Dumper

	log     *logrus.Logger
	limiter *rateLimiter
}

// Option configures a Table.
type Option func(*Table)

// WithLogger routes the table's diagnostics to log.
func WithLogger(log *logrus.Logger) Option {
	return func(t *Table) { t.log = log }
}

// WithTransport substitutes the kernel transports, used by tests.
func WithTransport(dial func() (Notifier, error), dumper Dumper) Option {
	return func(t *Table) {
		t.dialNotifier = dial
		t.dumper = dumper
	}
}

// New returns an unregistered Table talking to the kernel via rtnetlink.
func New(opts ...Option) *Table {
	t := &Table{
		dumper:  netlinkDumper{},
		log:     logrus.New(),
		limiter: newRateLimiter(defaultSuppressWindow),
	}
	t.dialNotifier = func() (Notifier, error) { return dialNetlinkNotifier(t.log) }
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register marks the table in use by one more consumer. The first
// registration subscribes to kernel route notifications and loads the
// table; a failed initial load is not fatal and leaves the mirror empty
// until the next resync. Every successful Register must be paired with
// an Unregister.
func (t *Table) Register() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.registerCount == 0 {
		n, err := t.dialNotifier()
		if err != nil {
			return fmt.Errorf("subscribing to route notifications: %w", err)
		}
		t.notifier = n
		t.routes = newRouteMap()
		if err := t.resync(); err != nil {
			t.log.WithError(err).Warn("failed to load routing table, mirror starts empty")
		}
	}
	t.registerCount++

	return nil
}

// Unregister releases one registration. The last one tears the mirror
// down: the notification subscription is closed and the cache dropped.
func (t *Table) Unregister() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.registerCount == 0 {
		t.log.Warn("unregister without matching register")
		return
	}
	t.registerCount--
	if t.registerCount > 0 {
		return
	}

	if err := t.notifier.Close(); err != nil {
		t.log.WithError(err).Warn("closing route notification socket")
	}
	t.notifier = nil
	t.routes.clear()
	t.routes = nil
}

// Run applies any pending route notifications, in delivery order. Safe
// to call while unregistered, where it does nothing. Run never blocks.
func (t *Table) Run() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.notifier == nil {
		return
	}

	for _, note := range t.notifier.Drain() {
		if note.Lost {
			// The kernel dropped notifications, so the mirror may
			// have diverged arbitrarily. Rebuild from scratch.
			t.logLimited("route notifications lost, resyncing")
			t.routes.clear()
			if err := t.resync(); err != nil {
				t.log.WithError(err).Warn("failed to resync routing table")
			}
			continue
		}
		if change, ok := t.parseRoute(note.Message); ok {
			t.apply(change)
		}
	}
}

// Wait blocks until route notifications are pending, so an event loop
// knows to call Run. It returns ctx's error if ctx ends first, or if the
// table is unregistered and no notification can ever arrive.
func (t *Table) Wait(ctx context.Context) error {
	t.mu.Lock()
	n := t.notifier
	t.mu.Unlock()

	if n == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.Ready():
		return nil
	}
}

// Resolve returns the index of the interface traffic destined for ip is
// likely to egress, preferring the longest matching prefix and falling
// back to the default route. There is no hard guarantee traffic will
// egress there: the mirror lags concurrent kernel changes, and the index
// may refer to a non-physical interface such as a bridge port. ok is
// false when no route matches or ip is not IPv4.
func (t *Table) Resolve(ip netip.Addr) (int, bool) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return 0, false
	}
	a := ip.As4()
	addr := binary.BigEndian.Uint32(a[:])

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.routes == nil {
		return 0, false
	}
	if rd, ok := t.routes.lookupByIP(addr); ok {
		return int(rd.OutIface), true
	}
	if rd, ok := t.routes.defaultRoute(); ok {
		return int(rd.OutIface), true
	}
	return 0, false
}

// resync replays a full kernel route dump through the normal change
// path. It does not clear existing entries; duplicate adds are absorbed
// by the cache, which makes back-to-back resyncs idempotent. Callers
// clear first when a fresh mirror is wanted. Called with t.mu held.
func (t *Table) resync() error {
	msgs, err := t.dumper.DumpRoutes()
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if change, ok := t.parseRoute(msg); ok {
			t.apply(change)
		}
	}
	return nil
}

// apply folds one decoded change into the cache. Duplicate adds and
// misses on delete are benign races between resync and incremental
// updates. Called with t.mu held.
func (t *Table) apply(change RouteChange) {
	if !change.Relevant {
		t.logLimited("ignoring irrelevant route change")
		return
	}

	switch change.Type {
	case unix.RTM_NEWROUTE:
		if !t.routes.insert(change.Data) {
			t.logLimited("skipping insertion of duplicate route entry")
		}
	case unix.RTM_DELROUTE:
		if !t.routes.remove(change.Data) {
			t.logLimited("skipping deletion of non-existent route entry")
		}
	default:
		t.logLimited("ignoring route message of unexpected type")
	}
}

// logLimited logs msg at debug level, suppressing repeats within the
// rate limiter's window.
func (t *Table) logLimited(msg string) {
	if t.limiter.allow(msg) {
		t.log.Debug(msg)
	}
}
