//go:build linux

package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackpal/gateway"
	"github.com/sirupsen/logrus"

	"github.com/tkjaer/routemirror/internal/config"
	"github.com/tkjaer/routemirror/pkg/routequery"
	"github.com/tkjaer/routemirror/pkg/routetable"
)

func main() {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log, logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	dests := make([]netip.Addr, 0, len(args.Destinations))
	for _, d := range args.Destinations {
		ip, err := lookupDst(d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dests = append(dests, ip)
	}

	if args.Gateway {
		gw, err := gateway.DiscoverGateway()
		if err != nil {
			log.WithError(err).Warn("could not discover default gateway")
		} else {
			fmt.Printf("default gateway: %s\n", gw)
		}
	}

	table := routetable.New(routetable.WithLogger(log))
	if err := table.Register(); err != nil {
		log.WithError(err).Error("could not subscribe to kernel route changes")
		os.Exit(1)
	}
	defer table.Unregister()

	resolveAll(table, dests, args.Verify, log)

	if !args.Watch {
		return
	}

	// Re-resolve whenever the kernel routing table changes, until
	// interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		if err := table.Wait(ctx); err != nil {
			log.Debug("stopping watch loop")
			return
		}
		table.Run()
		resolveAll(table, dests, args.Verify, log)
	}
}

// resolveAll prints the mirror's egress interface for every destination,
// optionally cross-checked against a direct kernel query.
func resolveAll(table *routetable.Table, dests []netip.Addr, verify bool, log *logrus.Logger) {
	for _, ip := range dests {
		ifindex, ok := table.Resolve(ip)
		if !ok {
			fmt.Printf("%s: no route\n", ip)
			continue
		}

		name := fmt.Sprintf("if%d", ifindex)
		if intf, err := net.InterfaceByIndex(ifindex); err == nil {
			name = intf.Name
		}
		fmt.Printf("%s: %s\n", ip, name)

		if verify {
			kr, err := routequery.Lookup(ip)
			switch {
			case err != nil:
				log.WithError(err).WithField("destination", ip).Warn("kernel route query failed")
			case kr.IfIndex != ifindex:
				fmt.Printf("%s: mirror disagrees with kernel (kernel says %s)\n", ip, kr.IfName)
			}
		}
	}
}
