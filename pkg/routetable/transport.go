package routetable

import (
	"github.com/mdlayher/netlink"
)

// Notification carries one raw route message from the kernel, or a loss
// marker when the transport reports dropped messages.
type Notification struct {
	Message netlink.Message
	Lost    bool
}

// Notifier delivers asynchronous route change notifications. The kernel
// routing table is an external authority the mirror subscribes to; the
// Notifier is that one-way subscription.
type Notifier interface {
	// Drain returns all notifications received since the previous
	// call, in delivery order, without blocking.
	Drain() []Notification

	// Ready is signaled whenever notifications are pending. Spurious
	// wakeups are possible; callers follow up with Drain via Run.
	Ready() <-chan struct{}

	Close() error
}

// Dumper fetches a full snapshot of the kernel routing table as raw
// route messages, used for resync.
type Dumper interface {
	DumpRoutes() ([]netlink.Message, error)
}
