// orbisat runs the onboard telemetry pipeline: instruments are polled into
// the fan-out bus, which feeds the durable packet log, the console, the
// altitude monitor and the serial uplink.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/orbisat/orbisat/internal/adapters/observability"
	"github.com/orbisat/orbisat/internal/shutdown"
	"github.com/orbisat/orbisat/pkg/orbisat"
)

const defaultConfigPath = "./data/config.yaml"

func main() {
	fmt.Fprintln(os.Stderr, banner())
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
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
		fmt.Fprintf(os.Stderr, "orbisat %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "path to the flight configuration file")
	metricsAddr := fs.String("metrics-addr", "", "serve /metrics and /healthz on this address (overrides metrics.addr)")
	logDir := fs.String("log-dir", "", "directory for the packet log (overrides log.dir)")
	noConsole := fs.Bool("no-console", false, "disable the console reporter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := orbisat.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = *metricsAddr
	}
	if fs.Changed("log-dir") {
		cfg.Log.Dir = *logDir
	}
	if *noConsole {
		off := false
		cfg.Console.Enabled = &off
	}

	logger, logCloser, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser.Close()

	rt, err := orbisat.NewRuntime(cfg, orbisat.WithLogger(logger))
	if err != nil {
		return err
	}

	stop := shutdown.Watch(rt.Gate(), shutdown.WithLogger(logger))
	defer stop()

	return rt.Run(context.Background())
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "path to the configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := orbisat.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func banner() string {
	if os.Getenv("NO_COLOR") != "" {
		return "orbisat · onboard telemetry"
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		Padding(0, 1).
		Render("orbisat · onboard telemetry")
}

func printUsage() {
	fmt.Printf(`orbisat CLI

Usage:
  orbisat <command> [flags]

Commands:
  run        Start the flight runtime using the provided config
  validate   Load and validate a config file without starting the runtime
  stats      Poll the metrics endpoint, or summarise a packet log file

Examples:
  orbisat run --config ./data/config.yaml
  orbisat validate -c ./data/config.yaml
  orbisat stats --url http://localhost:9100/metrics --interval 1s
  orbisat stats --log ./data/TMPACKETS-2026-01-01-00-00-00.000000000Z.log.zst
`)
}
