// minerprobe discovers ASIC miners on a network and reads their telemetry
// in one normalized shape.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/powerhive/minerprobe/internal/harvest"
	"github.com/powerhive/minerprobe/internal/metrics"
	"github.com/powerhive/minerprobe/internal/server"
	"github.com/powerhive/minerprobe/pkg/database"
	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/publish"
)

const usage = `minerprobe - ASIC miner discovery and telemetry

Usage:
  minerprobe <command> [arguments]

Commands:
  scan <target>        Scan for miners and print what was found
                       Targets: 192.168.1.0/24, 192.168.1.10-192.168.1.50,
                       192.168.1-3.1-50 or a comma-separated list
  detect <ip>          Identify the miner at an address
  info <ip>            Identify a miner and print its telemetry as JSON
  history <mac> [n]    Print stored snapshots of a miner
  serve                Run the HTTP API
  watch [targets...]   Poll targets every POLL_INTERVAL, store and publish
                       telemetry (use Ctrl+C to stop)

Environment Variables:
  MINERPROBE_DB        SQLite database path (default: minerprobe.db)
  STOCK_USERNAME       Stock firmware username (default: root)
  STOCK_PASSWORD       Stock firmware password (default: root)
  VNISH_PASSWORD       VNish firmware password (default: admin)
  DISCOVERY_TIMEOUT    Per-host identification deadline (default: 10s)
  SEARCH_MAKES         Comma-separated makes to probe for (default: all)
  SEARCH_FIRMWARES     Comma-separated firmwares to probe for (default: all)
  SCAN_CONCURRENCY     Hosts identified in parallel (default: 25)
  SCAN_TIMEOUT         Port check timeout (default: 1s)
  POLL_INTERVAL        Watch interval (default: 60s)
  NETWORK_CIDR         Comma-separated targets for watch mode
  KAFKA_BROKERS        Comma-separated brokers; enables Kafka publishing
  KAFKA_TOPIC          Kafka topic (default: miner-telemetry)
  MQTT_BROKER          Broker URL, e.g. tcp://localhost:1883; enables MQTT
  MQTT_TOPIC           MQTT topic prefix (default: minerprobe/miners)
  HTTP_ADDR            HTTP API listen address (default: :8080)
  LOG_LEVEL            debug, info, warn or error (default: info)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	cfg := LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "scan":
		err = runScan(ctx, cfg, logger)
	case "detect":
		err = runDetect(ctx, cfg, logger)
	case "info":
		err = runInfo(ctx, cfg, logger)
	case "history":
		err = runHistory(ctx, cfg)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "watch":
		err = runWatch(ctx, cfg, logger)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

func newDetector(cfg *Config, logger *slog.Logger) *discovery.Detector {
	opts := []discovery.Option{
		discovery.WithTimeout(cfg.DiscoveryTimeout),
		discovery.WithLogger(logger),
		discovery.WithCredentials(discovery.Credentials{
			StockUsername: cfg.StockUsername,
			StockPassword: cfg.StockPassword,
			VNishPassword: cfg.VNishPassword,
		}),
	}
	if len(cfg.SearchMakes) > 0 {
		opts = append(opts, discovery.WithSearchMakes(cfg.SearchMakes...))
	}
	if len(cfg.SearchFirmwares) > 0 {
		opts = append(opts, discovery.WithSearchFirmwares(cfg.SearchFirmwares...))
	}
	return discovery.NewDetector(opts...)
}

func newScanner(cfg *Config, d *discovery.Detector, logger *slog.Logger, collect bool) *discovery.Scanner {
	return discovery.NewScanner(d,
		discovery.WithConcurrency(cfg.ScanConcurrency),
		discovery.WithPortTimeout(cfg.ScanTimeout),
		discovery.WithCollect(collect),
		discovery.WithScanLogger(logger),
	)
}

func arg(i int, name string) (string, error) {
	if len(os.Args) <= i {
		return "", fmt.Errorf("missing argument: %s", name)
	}
	return os.Args[i], nil
}

func runScan(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	target, err := arg(2, "target")
	if err != nil {
		if len(cfg.NetworkTargets) == 0 {
			return err
		}
		target = cfg.NetworkTargets[0]
	}

	scanner := newScanner(cfg, newDetector(cfg, logger), logger, false)
	fmt.Printf("Scanning %s for miners...\n", target)

	result, err := scanner.Scan(ctx, target)
	if err != nil {
		return err
	}

	fmt.Printf("\nScan completed in %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Scanned IPs: %d, Responsive: %d, Miners found: %d\n",
		result.ScannedIPs, result.ResponsiveHosts, len(result.Miners))

	if len(result.Miners) > 0 {
		fmt.Println("\nDiscovered Miners:")
		fmt.Println("------------------")
		for _, m := range result.Miners {
			id := m.Identity
			fw := string(id.Firmware)
			if id.FirmwareVersion != "" {
				fw += " " + id.FirmwareVersion
			}
			fmt.Printf("  %-15s - %-30s (%s)\n", id.IP, id.Model, fw)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Printf("\nHosts with errors: %d (not miners or connection failed)\n", len(result.Errors))
	}
	return nil
}

func runDetect(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	ip, err := arg(2, "ip")
	if err != nil {
		return err
	}

	fmt.Printf("Detecting miner at %s...\n", ip)
	id, err := newDetector(cfg, logger).Identify(ctx, ip)
	if err != nil {
		return err
	}

	fmt.Printf("\nMiner detected:\n")
	fmt.Printf("  IP:       %s\n", id.IP)
	fmt.Printf("  Make:     %s\n", id.Make)
	fmt.Printf("  Model:    %s\n", id.Model)
	fmt.Printf("  Firmware: %s %s\n", id.Firmware, id.FirmwareVersion)
	return nil
}

func runInfo(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	ip, err := arg(2, "ip")
	if err != nil {
		return err
	}

	data, id, err := newDetector(cfg, logger).Collect(ctx, ip)
	if err != nil {
		return err
	}
	logger.Debug("collected", slog.String("ip", ip), slog.String("model", id.Model.String()))

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runHistory(ctx context.Context, cfg *Config) error {
	mac, err := arg(2, "mac")
	if err != nil {
		return err
	}
	limit := 20
	if n, err := arg(3, "limit"); err == nil {
		if _, err := fmt.Sscanf(n, "%d", &limit); err != nil {
			return fmt.Errorf("invalid limit %q", n)
		}
	}

	repo, err := database.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	snapshots, err := repo.History(ctx, mac, limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Printf("No snapshots for %s\n", mac)
		return nil
	}

	fmt.Printf("%-20s  %-15s  %10s  %8s  %6s  %s\n", "TIME", "IP", "TH/s", "WATTS", "TEMP", "MINING")
	for _, s := range snapshots {
		fmt.Printf("%-20s  %-15s  %10s  %8s  %6s  %v\n",
			s.TakenAt.Local().Format("2006-01-02 15:04:05"), s.IPAddress,
			formatFloat(s.HashrateTHs, 2), formatFloat(s.Wattage, 0), formatFloat(s.AvgTemp, 1), s.IsMining)
	}
	return nil
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func runServe(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	repo, err := database.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	detector := newDetector(cfg, logger)
	srv := server.New(detector, newScanner(cfg, detector, logger, true),
		server.WithRepository(repo),
		server.WithMetrics(metrics.NewMetrics()),
		server.WithLogger(logger),
	)
	return srv.Start(ctx, cfg.HTTPAddr)
}

func runWatch(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	targets := cfg.NetworkTargets
	if len(os.Args) > 2 {
		targets = os.Args[2:]
	}
	if len(targets) == 0 {
		logger.Warn("no targets given, only known miners will be polled")
	}

	repo, err := database.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	pub, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	m := metrics.NewMetrics()
	detector := newDetector(cfg, logger)
	h := harvest.New(newScanner(cfg, detector, logger, true), detector,
		harvest.WithRepository(repo),
		harvest.WithPublisher(pub),
		harvest.WithMetrics(m),
		harvest.WithLogger(logger),
		harvest.WithInterval(cfg.PollInterval),
		harvest.WithConcurrency(cfg.ScanConcurrency),
	)

	// The API runs alongside so the collected metrics can be scraped.
	if cfg.HTTPAddr != "" {
		srv := server.New(detector, newScanner(cfg, detector, logger, true),
			server.WithRepository(repo),
			server.WithMetrics(m),
			server.WithLogger(logger),
		)
		go func() {
			if err := srv.Start(ctx, cfg.HTTPAddr); err != nil {
				logger.Error("http server stopped", slog.Any("error", err))
			}
		}()
	}

	logger.Info("watching",
		slog.String("db", cfg.DBPath),
		slog.Any("targets", targets),
		slog.Duration("interval", cfg.PollInterval),
	)
	return h.RunDaemon(ctx, targets)
}

// newPublisher builds the configured publishers; with none configured it
// returns an empty Multi.
func newPublisher(cfg *Config, logger *slog.Logger) (publish.Publisher, error) {
	var pubs publish.Multi
	if len(cfg.KafkaBrokers) > 0 {
		k, err := publish.NewKafkaPublisher(publish.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, k)
	}
	if cfg.MQTTBroker != "" {
		m, err := publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker: cfg.MQTTBroker,
			Topic:  cfg.MQTTTopic,
		}, logger)
		if err != nil {
			pubs.Close()
			return nil, err
		}
		pubs = append(pubs, m)
	}
	return pubs, nil
}
