// acdprobe — RFC 5227 address conflict detection for one or more candidate
// IPv4 addresses on a single interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athena-dhcpd/acd"
	"github.com/athena-dhcpd/acd/internal/acdconfig"
	"github.com/athena-dhcpd/acd/internal/events"
	"github.com/athena-dhcpd/acd/internal/eventloop"
	"github.com/athena-dhcpd/acd/internal/logging"
)

func main() {
	configPath := flag.String("config", "/etc/acdprobe/config.toml", "path to configuration file")
	metricsAddr := flag.String("metrics-addr", "", "enable a Prometheus metrics endpoint on this address (e.g. :9114)")
	flag.Parse()

	cfg, err := acdconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, os.Stdout)
	logger.Info("acdprobe starting", "interface", cfg.Interface, "addresses", cfg.Addresses)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics server listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		logger.Error("resolving interface", "interface", cfg.Interface, "error", err)
		os.Exit(1)
	}

	loop, err := eventloop.New()
	if err != nil {
		logger.Error("creating event loop", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event loop stopped unexpectedly", "error", err)
		}
	}()

	// The bus is an aggregate view across every address on this interface;
	// each session's SetCallback remains the per-address sink set below.
	bus := events.NewBus(0, logger)
	go bus.Start()
	defer bus.Stop()

	agg := bus.Subscribe(0)
	go func() {
		for evt := range agg {
			logger.Info("acd bus event", "type", evt.Type, "session", evt.Session)
		}
	}()

	sessions := make([]*acd.Session, 0, len(cfg.Addresses))
	for _, addrStr := range cfg.Addresses {
		addr := net.ParseIP(addrStr).To4()
		s := acd.New()
		s.SetLogger(logger)
		s.SetCallback(onEvent, nil)
		s.SetEventBus(bus)

		if err := s.SetIfindex(iface.Index); err != nil {
			logger.Error("SetIfindex", "address", addrStr, "error", err)
			continue
		}
		if err := s.SetMAC(iface.HardwareAddr); err != nil {
			logger.Error("SetMAC", "address", addrStr, "error", err)
			continue
		}
		if err := s.SetAddress(addr); err != nil {
			logger.Error("SetAddress", "address", addrStr, "error", err)
			continue
		}
		if err := s.AttachEventLoop(loop, 0); err != nil {
			logger.Error("AttachEventLoop", "address", addrStr, "error", err)
			continue
		}
		if err := s.Start(); err != nil {
			logger.Error("Start", "address", addrStr, "error", err)
			continue
		}
		sessions = append(sessions, s)
	}

	<-ctx.Done()
	logger.Info("acdprobe shutting down")
	for _, s := range sessions {
		_ = s.Stop()
	}
}

func onEvent(s *acd.Session, event acd.Event, _ any) {
	fmt.Printf("acd event=%s state=%s\n", event, s.State())
}
