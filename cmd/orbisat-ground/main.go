// orbisat-ground reads what the flight side produced: packet log files and
// raw uplink captures or a live serial line. It decodes, verifies and
// ingests them into TimescaleDB and NATS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "decode":
		err = decodeCommand(os.Args[2:])
	case "verify":
		err = verifyCommand(os.Args[2:])
	case "ingest":
		err = ingestCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "orbisat-ground %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`orbisat ground tool

Usage:
  orbisat-ground <command> [flags] [files...]

Commands:
  decode   Print every packet of packet logs, raw captures or a live serial line
  verify   Check packet logs against their .b3 digest sidecars
  ingest   Load packets into TimescaleDB and/or publish them to NATS

Examples:
  orbisat-ground decode ./data/TMPACKETS-*.log.zst
  orbisat-ground decode --device /dev/ttyUSB0 --baud 19200
  orbisat-ground verify ./data/TMPACKETS-*.log*
  orbisat-ground ingest --timescale postgres://localhost/telemetry --nats nats://localhost:4222 ./data/*.log
`)
}
