//go:build linux

package routetable

import (
	"context"
	"io"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/mdlayher/netlink"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type fakeNotifier struct {
	mu     sync.Mutex
	queue  []Notification
	readyc chan struct{}
	closed bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{readyc: make(chan struct{}, 1)}
}

func (f *fakeNotifier) push(note Notification) {
	f.mu.Lock()
	f.queue = append(f.queue, note)
	f.mu.Unlock()

	select {
	case f.readyc <- struct{}{}:
	default:
	}
}

func (f *fakeNotifier) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	queue := f.queue
	f.queue = nil
	return queue
}

func (f *fakeNotifier) Ready() <-chan struct{} { return f.readyc }

func (f *fakeNotifier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeDumper struct {
	msgs  []netlink.Message
	err   error
	calls int
}

func (d *fakeDumper) DumpRoutes() ([]netlink.Message, error) {
	d.calls++
	return d.msgs, d.err
}

func newTestTable(n *fakeNotifier, d *fakeDumper) *Table {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(
		WithLogger(log),
		WithTransport(func() (Notifier, error) { return n, nil }, d),
	)
}

func (t *Table) cacheSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.routes == nil {
		return 0
	}
	return t.routes.size()
}

func dumpOf(t *testing.T, msgs ...routeMsg) []netlink.Message {
	t.Helper()
	out := make([]netlink.Message, 0, len(msgs))
	for _, rm := range msgs {
		out = append(out, rm.build(t))
	}
	return out
}

func TestRegisterLoadsKernelDump(t *testing.T) {
	scopeNowhere := unicast(unix.RTM_NEWROUTE, "10.3.0.0", 16, 4)
	scopeNowhere.scope = unix.RT_SCOPE_NOWHERE

	dumper := &fakeDumper{msgs: dumpOf(t,
		unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1),
		unicast(unix.RTM_NEWROUTE, "10.1.0.0", 16, 2),
		unicast(unix.RTM_NEWROUTE, "", 0, 3), // default route
		scopeNowhere,                         // must be skipped
	)}
	tbl := newTestTable(newFakeNotifier(), dumper)

	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	if got := tbl.cacheSize(); got != 3 {
		t.Errorf("cache size after register = %d, want 3", got)
	}

	tests := []struct {
		addr      string
		wantIface int
		wantOK    bool
	}{
		{"10.1.2.3", 2, true},     // longest prefix wins
		{"10.2.3.4", 1, true},     // only the /8 matches
		{"192.168.1.1", 3, true},  // default route fallback
	}
	for _, tt := range tests {
		iface, ok := tbl.Resolve(netip.MustParseAddr(tt.addr))
		if ok != tt.wantOK || iface != tt.wantIface {
			t.Errorf("Resolve(%s) = %d, %v, want %d, %v", tt.addr, iface, ok, tt.wantIface, tt.wantOK)
		}
	}
}

func TestResolveRejectsNonIPv4(t *testing.T) {
	dumper := &fakeDumper{msgs: dumpOf(t, unicast(unix.RTM_NEWROUTE, "", 0, 3))}
	tbl := newTestTable(newFakeNotifier(), dumper)
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	if _, ok := tbl.Resolve(netip.MustParseAddr("2001:db8::1")); ok {
		t.Error("Resolve() answered for an IPv6 address")
	}
	if iface, ok := tbl.Resolve(netip.MustParseAddr("::ffff:192.0.2.1")); !ok || iface != 3 {
		t.Errorf("Resolve(4-mapped-6) = %d, %v, want 3, true", iface, ok)
	}
}

func TestIncrementalAddAndDelete(t *testing.T) {
	notifier := newFakeNotifier()
	tbl := newTestTable(notifier, &fakeDumper{})
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	notifier.push(Notification{Message: unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1).build(t)})
	tbl.Run()
	if iface, ok := tbl.Resolve(netip.MustParseAddr("10.2.3.4")); !ok || iface != 1 {
		t.Fatalf("Resolve() after add = %d, %v, want 1, true", iface, ok)
	}

	// Duplicate add must not grow the cache.
	notifier.push(Notification{Message: unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1).build(t)})
	tbl.Run()
	if got := tbl.cacheSize(); got != 1 {
		t.Errorf("cache size after duplicate add = %d, want 1", got)
	}

	notifier.push(Notification{Message: unicast(unix.RTM_DELROUTE, "10.0.0.0", 8, 1).build(t)})
	tbl.Run()
	if _, ok := tbl.Resolve(netip.MustParseAddr("10.2.3.4")); ok {
		t.Error("Resolve() found a route after delete")
	}

	// Deleting again is a benign miss.
	notifier.push(Notification{Message: unicast(unix.RTM_DELROUTE, "10.0.0.0", 8, 1).build(t)})
	tbl.Run()
	if got := tbl.cacheSize(); got != 0 {
		t.Errorf("cache size after missed delete = %d, want 0", got)
	}
}

func TestIrrelevantChangeDoesNotMutateCache(t *testing.T) {
	notifier := newFakeNotifier()
	tbl := newTestTable(notifier, &fakeDumper{})
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	rm := unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1)
	rm.scope = unix.RT_SCOPE_NOWHERE
	notifier.push(Notification{Message: rm.build(t)})
	tbl.Run()

	if got := tbl.cacheSize(); got != 0 {
		t.Errorf("cache size after irrelevant change = %d, want 0", got)
	}
}

func TestResyncIdempotent(t *testing.T) {
	dumper := &fakeDumper{msgs: dumpOf(t,
		unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1),
		unicast(unix.RTM_NEWROUTE, "", 0, 3),
	)}
	tbl := newTestTable(newFakeNotifier(), dumper)
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	before := tbl.cacheSize()

	tbl.mu.Lock()
	err := tbl.resync()
	tbl.mu.Unlock()
	if err != nil {
		t.Fatalf("resync() error: %v", err)
	}

	if got := tbl.cacheSize(); got != before {
		t.Errorf("cache size after second resync = %d, want %d", got, before)
	}
}

func TestLostNotificationTriggersResync(t *testing.T) {
	notifier := newFakeNotifier()
	dumper := &fakeDumper{msgs: dumpOf(t, unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1))}
	tbl := newTestTable(notifier, dumper)
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	// The kernel table moved on while notifications were dropped.
	dumper.msgs = dumpOf(t, unicast(unix.RTM_NEWROUTE, "10.5.0.0", 16, 7))

	notifier.push(Notification{Lost: true})
	tbl.Run()

	if dumper.calls != 2 {
		t.Errorf("dump calls = %d, want 2 (register + loss recovery)", dumper.calls)
	}
	if got := tbl.cacheSize(); got != 1 {
		t.Errorf("cache size after recovery = %d, want 1", got)
	}
	if _, ok := tbl.Resolve(netip.MustParseAddr("10.0.0.1")); ok {
		t.Error("Resolve() still answers from the stale pre-loss cache")
	}
	if iface, ok := tbl.Resolve(netip.MustParseAddr("10.5.1.1")); !ok || iface != 7 {
		t.Errorf("Resolve() = %d, %v, want 7, true", iface, ok)
	}
}

func TestReferenceCounting(t *testing.T) {
	notifier := newFakeNotifier()
	dumper := &fakeDumper{msgs: dumpOf(t, unicast(unix.RTM_NEWROUTE, "", 0, 3))}
	tbl := newTestTable(notifier, dumper)

	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := tbl.Register(); err != nil {
		t.Fatalf("second Register() error: %v", err)
	}
	if dumper.calls != 1 {
		t.Errorf("dump calls after two registers = %d, want 1", dumper.calls)
	}

	tbl.Unregister()
	if _, ok := tbl.Resolve(netip.MustParseAddr("192.0.2.1")); !ok {
		t.Error("Resolve() failed while one registration remains")
	}
	if notifier.closed {
		t.Error("notifier closed while one registration remains")
	}

	tbl.Unregister()
	if _, ok := tbl.Resolve(netip.MustParseAddr("192.0.2.1")); ok {
		t.Error("Resolve() answered after the last unregister")
	}
	if !notifier.closed {
		t.Error("notifier not closed by the last unregister")
	}

	// Unbalanced unregister must not panic or underflow.
	tbl.Unregister()
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() after teardown error: %v", err)
	}
	defer tbl.Unregister()
	if _, ok := tbl.Resolve(netip.MustParseAddr("192.0.2.1")); !ok {
		t.Error("Resolve() failed after re-registration")
	}
}

func TestRegisterSurvivesDumpFailure(t *testing.T) {
	dumper := &fakeDumper{err: context.DeadlineExceeded}
	tbl := newTestTable(newFakeNotifier(), dumper)

	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v, want nil on dump failure", err)
	}
	defer tbl.Unregister()

	if got := tbl.cacheSize(); got != 0 {
		t.Errorf("cache size = %d, want 0", got)
	}
	if _, ok := tbl.Resolve(netip.MustParseAddr("192.0.2.1")); ok {
		t.Error("Resolve() answered from an empty cache")
	}
	tbl.Run() // still operational
}

func TestRunAndWaitUnregistered(t *testing.T) {
	tbl := newTestTable(newFakeNotifier(), &fakeDumper{})

	tbl.Run() // must not panic

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tbl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() on unregistered table = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestWaitWakesOnNotification(t *testing.T) {
	notifier := newFakeNotifier()
	tbl := newTestTable(notifier, &fakeDumper{})
	if err := tbl.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer tbl.Unregister()

	notifier.push(Notification{Message: unicast(unix.RTM_NEWROUTE, "10.0.0.0", 8, 1).build(t)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tbl.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	tbl.Run()
	if iface, ok := tbl.Resolve(netip.MustParseAddr("10.2.3.4")); !ok || iface != 1 {
		t.Errorf("Resolve() after wake = %d, %v, want 1, true", iface, ok)
	}
}
