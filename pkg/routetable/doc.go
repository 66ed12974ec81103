// Package routetable keeps a local, best-effort mirror of the kernel's
// IPv4 unicast routing table and answers egress-interface queries from
// it, avoiding a kernel round-trip per query. The mirror is kept in sync
// by rtnetlink multicast notifications, with a full table dump on
// registration and whenever the kernel reports dropped notifications.
//
// The mirror never programs kernel routing state, and answers are only
// "likely, absent concurrent changes": the kernel table can move between
// a notification and a query.
package routetable
