// Command metricsctl is a demo CLI wiring hostid+connection+sender+cache
// together, the way cmd/agent and cmd/worker wire their own pipelines:
// flag parsing, context.WithCancel + os/signal.Notify for graceful
// shutdown, and host info printed at startup via gopsutil.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	gopsutilhost "github.com/shirou/gopsutil/v3/host"

	"github.com/endlessm/eos-metrics-go/cache"
	"github.com/endlessm/eos-metrics-go/connection"
	"github.com/endlessm/eos-metrics-go/internal/obsmetrics"
	"github.com/endlessm/eos-metrics-go/payload"
	"github.com/endlessm/eos-metrics-go/registry"
	"github.com/endlessm/eos-metrics-go/sender"
)

func main() {
	endpointConfigPath := flag.String("endpoint-config", "", "Path to the endpoint JSON config (default: $XDG_DATA_HOME/eosmetrics/endpoint.json)")
	fingerprintPath := flag.String("fingerprint-file", "", "Path to the fingerprint file (default: $XDG_DATA_HOME/eosmetrics/fingerprint)")
	queuePath := flag.String("queue-file", "queue.json", "Queue file path (relative to $XDG_DATA_HOME/eosmetrics/storage if not absolute)")
	uriContext := flag.String("uri-context", "metrics", "URI context appended to the resolved endpoint")
	autoDrainInterval := flag.Duration("auto-drain-interval", 0, "If nonzero, periodically drain the queue on this interval")
	eventName := flag.String("event", "cli-invocation", "Name recorded under the \"event\" payload key")
	metricsExporter := flag.String("metrics-exporter", "none", "Observability exporter: none, stdout, otlp-grpc, or otlp-http")
	metricsEndpoint := flag.String("metrics-endpoint", "", "OTLP collector endpoint (used when -metrics-exporter is otlp-grpc/otlp-http)")
	cacheDir := flag.String("cache-dir", "", "Directory for the persistent record cache (default: /var/cache/metrics/)")
	cacheEventID := flag.String("cache-event", "005096c8-7873-4c0d-a2ae-0a0c8f2ce3fe", "Event UUID recorded into the persistent cache and then drained")
	flag.Parse()

	dataHome := xdgDataHome()
	if *endpointConfigPath == "" {
		*endpointConfigPath = filepath.Join(dataHome, "eosmetrics", "endpoint.json")
	}
	if *fingerprintPath == "" {
		*fingerprintPath = filepath.Join(dataHome, "eosmetrics", "fingerprint")
	}

	if info, err := gopsutilhost.Info(); err == nil {
		fmt.Printf("host: %s (%s %s)\n", info.Hostname, info.Platform, info.KernelVersion)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := obsmetrics.New(ctx, obsmetrics.Config{
		Enabled:      *metricsExporter != "none",
		ServiceName:  "metricsctl",
		ExporterType: obsmetrics.ExporterType(*metricsExporter),
		OTLPEndpoint: *metricsEndpoint,
		OTLPInsecure: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics setup failed: %v\n", err)
		os.Exit(1)
	}
	defer m.Shutdown(context.Background())

	conn := connection.New(connection.Config{
		URIContext:         *uriContext,
		FingerprintPath:    *fingerprintPath,
		EndpointConfigPath: *endpointConfigPath,
	})
	s := sender.New(conn, *queuePath, sender.WithMetrics(m))

	fmt.Printf("endpoint: %s\n", conn.Endpoint())
	fmt.Printf("queue file: %s\n", s.QueuePath())

	cacheCfg := cache.Config{}
	if *cacheDir != "" {
		cacheCfg.Directory = *cacheDir
	}
	c := cache.New(cacheCfg)
	if err := c.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "cache init failed: %v\n", err)
		os.Exit(1)
	}
	m.SetCacheCapacity(c.CapacityState())

	if eventID, err := uuid.Parse(*cacheEventID); err == nil {
		rec := cache.IndividualRecord{EventID: eventID, Relative: time.Now().UnixMilli()}
		capacity, dropped, err := c.Store([]cache.IndividualRecord{rec}, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cache store failed: %v\n", err)
			os.Exit(1)
		}
		m.SetCacheCapacity(capacity)
		m.RecordCacheDrop(ctx, dropped)

		individual, _, _, err := c.Drain()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cache drain failed: %v\n", err)
			os.Exit(1)
		}
		m.SetCacheCapacity(c.CapacityState())
		for _, rec := range individual {
			name, _ := registry.EventName(rec.EventID.String())
			fmt.Printf("cached event: %s (%s)\n", rec.EventID, name)
		}
	} else {
		fmt.Fprintf(os.Stderr, "skipping cache demo: %v\n", err)
	}

	if *autoDrainInterval > 0 {
		s.StartAutoDrain(ctx, *autoDrainInterval)
		defer s.StopAutoDrain()
		fmt.Printf("auto-drain every %s\n", *autoDrainInterval)
	}

	p := payload.Payload{
		"event":     payload.String(*eventName),
		"timestamp": payload.Int(time.Now().UnixMilli()),
	}
	if err := s.SendDataSync(ctx, p); err != nil {
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("payload sent or queued")

	if *autoDrainInterval == 0 {
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down metricsctl...")
	cancel()
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}
