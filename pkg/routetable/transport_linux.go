//go:build linux

package routetable

import (
	"errors"
	"sync"

	"github.com/mdlayher/netlink"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// netlinkNotifier subscribes to the RTNLGRP_IPV4_ROUTE multicast group
// and queues raw route messages for the table to drain. A receive
// goroutine owns the socket; Drain and Ready never touch it, so neither
// ever blocks.
type netlinkNotifier struct {
	conn *netlink.Conn
	log  *logrus.Logger

	mu    sync.Mutex
	queue []Notification

	readyc chan struct{}
	donec  chan struct{}
	wg     sync.WaitGroup
}

func dialNetlinkNotifier(log *logrus.Logger) (*netlinkNotifier, error) {
	conn, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, err
	}
	if err := conn.JoinGroup(unix.RTNLGRP_IPV4_ROUTE); err != nil {
		conn.Close()
		return nil, err
	}

	n := &netlinkNotifier{
		conn:   conn,
		log:    log,
		readyc: make(chan struct{}, 1),
		donec:  make(chan struct{}),
	}
	n.wg.Add(1)
	go n.receive()

	return n, nil
}

// receive reads route messages off the socket until Close. A receive
// buffer overrun means the kernel dropped notifications; that is queued
// as a loss marker so the table knows to resync instead of silently
// diverging.
func (n *netlinkNotifier) receive() {
	defer n.wg.Done()

	for {
		msgs, err := n.conn.Receive()
		if err != nil {
			select {
			case <-n.donec:
				return
			default:
			}
			if errors.Is(err, unix.ENOBUFS) {
				n.push(Notification{Lost: true})
				continue
			}
			n.log.WithError(err).Warn("route notification socket failed")
			// The subscription is dead; treat it as a loss so a
			// resync at least refreshes the mirror once more.
			n.push(Notification{Lost: true})
			return
		}

		for _, msg := range msgs {
			n.push(Notification{Message: msg})
		}
	}
}

func (n *netlinkNotifier) push(note Notification) {
	n.mu.Lock()
	n.queue = append(n.queue, note)
	n.mu.Unlock()

	select {
	case n.readyc <- struct{}{}:
	default:
	}
}

func (n *netlinkNotifier) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	queue := n.queue
	n.queue = nil
	return queue
}

func (n *netlinkNotifier) Ready() <-chan struct{} {
	return n.readyc
}

func (n *netlinkNotifier) Close() error {
	close(n.donec)
	err := n.conn.Close()
	n.wg.Wait()
	return err
}

// netlinkDumper fetches the full IPv4 routing table with an RTM_GETROUTE
// dump request. Each dump uses its own connection, created on demand, so
// a failure here never disturbs the notification subscription.
type netlinkDumper struct{}

func (netlinkDumper) DumpRoutes() ([]netlink.Message, error) {
	conn, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// The request body is a struct rtgenmsg: one family byte plus
	// padding to alignment.
	req := netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_GETROUTE,
			Flags: netlink.Request | netlink.Dump,
		},
		Data: []byte{unix.AF_INET, 0, 0, 0},
	}

	return conn.Execute(req)
}
