package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crosscore/core"
	"crosscore/host/config"
	"crosscore/host/logging"
	"crosscore/host/sim"
)

var (
	configPath = flag.String("config", "", "Config file (.json or .toml)")
	demo       = flag.String("demo", "", "Demo to run: "+strings.Join(sim.Demos(), ", "))
	messages   = flag.Int("messages", 0, "Payloads or round trips to send")
	capacity   = flag.Int("capacity", 0, "Queue capacity per binding (one slot stays free)")
	depth      = flag.Int("depth", 0, "Mailbox FIFO depth in words")
	delay      = flag.Duration("delay", 0, "Extra time spent in every handler")
	timeout    = flag.Duration("timeout", 0, "Abort the demo after this long")
	pin        = flag.Bool("pin", false, "Pin each simulated core to its own CPU")
	logLevel   = flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	dumpTrace  = flag.Bool("dump-trace", false, "Print the trace rings when the demo ends")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logging.Attach(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Sim.Timeout.Duration)
	defer cancel()

	report, err := sim.RunDemo(ctx, cfg.Sim.Demo, sim.DemoConfig{
		Messages: cfg.Sim.Messages,
		Capacity: cfg.Sim.Capacity,
		Depth:    cfg.Sim.Depth,
		Delay:    cfg.Sim.Delay.Duration,
		Pin:      cfg.Sim.Pin,
	}, log)

	if *dumpTrace {
		core.DumpTrace()
	}
	if report != nil {
		log.Info().EmbedObject(report).Msg("demo finished")
	}
	if err != nil {
		log.Error().Err(err).Str("demo", cfg.Sim.Demo).Msg("demo failed")
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and lets flags set on the
// command line override it
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "demo":
			cfg.Sim.Demo = *demo
		case "messages":
			cfg.Sim.Messages = *messages
		case "capacity":
			cfg.Sim.Capacity = *capacity
		case "depth":
			cfg.Sim.Depth = *depth
		case "delay":
			cfg.Sim.Delay.Duration = *delay
		case "timeout":
			cfg.Sim.Timeout.Duration = *timeout
		case "pin":
			cfg.Sim.Pin = *pin
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if cfg.Sim.Timeout.Duration == 0 {
		cfg.Sim.Timeout.Duration = time.Minute
	}
	return cfg, cfg.Validate()
}
