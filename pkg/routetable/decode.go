//go:build linux

package routetable

import (
	"encoding/binary"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

// RouteChange is the digested form of one kernel route message. Relevant
// is false for changes the mirror must not apply: routes with scope
// RT_SCOPE_NOWHERE (not installed for forwarding) and route types other
// than unicast or local.
type RouteChange struct {
	Relevant bool
	Type     uint16 // unix.RTM_NEWROUTE or unix.RTM_DELROUTE
	Data     RouteData
}

// rtmsg body layout, see struct rtmsg in linux/rtnetlink.h.
const (
	rtmFamily = 0
	rtmDstLen = 1
	rtmScope  = 6
	rtmType   = 7
)

// parseRoute digests one raw rtnetlink route message. ok is false when
// the message is not an AF_INET route or fails the attribute policy:
// RTA_OIF is mandatory, RTA_DST is optional, both 32-bit. Rejections are
// logged at debug, rate-limited, and never escalate.
func (t *Table) parseRoute(msg netlink.Message) (RouteChange, bool) {
	if len(msg.Data) < unix.SizeofRtMsg {
		t.logLimited("received truncated rtnetlink route message")
		return RouteChange{}, false
	}

	if msg.Data[rtmFamily] != unix.AF_INET {
		t.logLimited("received non AF_INET rtnetlink route message")
		return RouteChange{}, false
	}

	ad, err := netlink.NewAttributeDecoder(msg.Data[unix.SizeofRtMsg:])
	if err != nil {
		t.logLimited("received unparseable rtnetlink route message")
		return RouteChange{}, false
	}

	var (
		dst    uint32
		oif    int32
		hasOIF bool
	)
	for ad.Next() {
		switch ad.Type() {
		case unix.RTA_DST:
			// Addresses travel in network byte order; everything
			// else on the wire is native.
			ad.ByteOrder = binary.BigEndian
			dst = ad.Uint32()
			ad.ByteOrder = nlenc.NativeEndian()
		case unix.RTA_OIF:
			oif = int32(ad.Uint32())
			hasOIF = true
		}
	}
	if err := ad.Err(); err != nil || !hasOIF {
		t.logLimited("received unparseable rtnetlink route message")
		return RouteChange{}, false
	}

	change := RouteChange{
		Relevant: true,
		Type:     uint16(msg.Header.Type),
		Data: RouteData{
			PrefixLen: msg.Data[rtmDstLen],
			Dst:       dst,
			OutIface:  oif,
		},
	}

	if msg.Data[rtmScope] == unix.RT_SCOPE_NOWHERE {
		change.Relevant = false
	}
	if msg.Data[rtmType] != unix.RTN_UNICAST && msg.Data[rtmType] != unix.RTN_LOCAL {
		change.Relevant = false
	}

	return change, true
}
