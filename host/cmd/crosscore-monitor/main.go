package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"crosscore/host/config"
	"crosscore/host/logging"
	"crosscore/host/monitor"
	"crosscore/host/serial"
)

var (
	configPath = flag.String("config", "", "Config file (.json or .toml)")
	device     = flag.String("device", "", "Serial device path")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	duration   = flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	logLevel   = flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Monitor.Device = *device
		case "baud":
			cfg.Monitor.Baud = *baud
		case "duration":
			cfg.Monitor.Duration.Duration = *duration
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	port, err := serial.Open(&serial.Config{
		Device:      cfg.Monitor.Device,
		Baud:        cfg.Monitor.Baud,
		ReadTimeout: cfg.Monitor.ReadTimeout.Duration,
	})
	if err != nil {
		log.Error().Err(err).Msg("open console")
		os.Exit(1)
	}
	defer port.Close()
	if err := port.Flush(); err != nil {
		log.Warn().Err(err).Msg("flush console")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := cfg.Monitor.Duration.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	log.Info().Str("device", cfg.Monitor.Device).Msg("monitoring console")
	mon := monitor.New(log)
	err = mon.Run(ctx, port)
	mon.LogSummary()
	if err != nil {
		log.Error().Err(err).Msg("console closed")
		os.Exit(1)
	}
}
