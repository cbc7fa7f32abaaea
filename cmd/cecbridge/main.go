// Command cecbridge discovers, inspects, and drives an IP-controlled
// amplifier, and — via its `daemon` subcommand — runs the long-lived
// CEC-to-amplifier bridge described across this module's pkg/ packages.
// Each subcommand gets its own flag.FlagSet; the daemon subcommand adds a
// PID file and signal-driven graceful shutdown.
package main

import (
	"fmt"
	"os"
)

const Version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var code int
	switch cmd {
	case "list":
		code = runList(args)
	case "tree":
		code = runTree(args)
	case "systems":
		code = runSystems(args)
	case "getvol":
		code = runGetVol(args)
	case "setvol":
		code = runSetVol(args)
	case "volup":
		code = runVolUp(args)
	case "voldown":
		code = runVolDown(args)
	case "mute":
		code = runMute(args)
	case "daemon":
		code = runDaemon(args)
	case "version", "--version":
		fmt.Printf("cecbridge version %s\n", Version)
		code = 0
	case "help", "-h", "--help":
		usage()
		code = 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		code = 2
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: cecbridge <command> [flags]

commands:
  list                     discover amplifiers on the LAN via mDNS
  tree [--json]            show discovered devices grouped by system/group
  systems                  show the current system inventory
  getvol                   print the current volume
  setvol <0-100>           set the volume
  volup                    step the volume up
  voldown                  step the volume down
  mute                     toggle mute
  daemon [--input cec|keyboard]
                           run the CEC-to-amplifier bridge

Run 'cecbridge <command> -h' for command-specific flags.`)
}
