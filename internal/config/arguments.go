package config

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/tkjaer/routemirror/internal/version"
)

type Args struct {
	Destinations []string // IP addresses or hostnames to resolve

	Watch   bool // keep running and re-resolve on route changes
	Verify  bool // cross-check answers against the kernel
	Gateway bool // print the default gateway

	// Logging
	Log      string // log file path, empty means stderr
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool

	// Set custom usage message
	flag.Usage = func() {
		println("routemirror - kernel routing table mirror")
		println()
		println("Resolves the egress interface for destinations from a local mirror")
		println("of the kernel's IPv4 routing table, kept in sync over rtnetlink.")
		println()
		println("Usage:")
		println("  routemirror [OPTIONS] DESTINATION...")
		println()
		println("Examples:")
		println("  routemirror 8.8.8.8                  # One-shot egress lookup")
		println("  routemirror -w example.org           # Re-resolve on route changes")
		println("  routemirror -V -g 10.0.0.1           # Verify against the kernel, show gateway")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Documentation: https://github.com/tkjaer/routemirror")
		println("Report issues: https://github.com/tkjaer/routemirror/issues")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.BoolVarP(&args.Watch, "watch", "w", false, "Keep watching and re-resolve when routes change")
	flag.BoolVarP(&args.Verify, "verify", "V", false, "Cross-check each answer with a direct kernel query")
	flag.BoolVarP(&args.Gateway, "gateway", "g", false, "Also print the default gateway")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = stderr)")
	flag.StringVar(&args.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	args.Destinations = flag.Args()
	if len(args.Destinations) == 0 {
		return args, errors.New("at least one destination is required")
	}

	return args, nil
}
