package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/powerhive/minerprobe/pkg/miner"
	"github.com/powerhive/minerprobe/pkg/publish"
)

// Config holds all configuration for the minerprobe CLI.
type Config struct {
	// Database
	DBPath string

	// Authentication
	StockUsername string
	StockPassword string
	VNishPassword string

	// Discovery
	DiscoveryTimeout time.Duration
	SearchMakes      []miner.Make
	SearchFirmwares  []miner.Firmware

	// Scanning
	ScanConcurrency int
	ScanTimeout     time.Duration

	// Watch mode (comma-separated targets supported via NETWORK_CIDR)
	PollInterval   time.Duration
	NetworkTargets []string

	// Publishing
	KafkaBrokers []string
	KafkaTopic   string
	MQTTBroker   string
	MQTTTopic    string

	// HTTP API
	HTTPAddr string

	LogLevel slog.Level
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:           "minerprobe.db",
		StockUsername:    "root",
		StockPassword:    "root",
		VNishPassword:    "admin",
		DiscoveryTimeout: 10 * time.Second,
		ScanConcurrency:  25,
		ScanTimeout:      time.Second,
		PollInterval:     60 * time.Second,
		KafkaTopic:       "miner-telemetry",
		MQTTTopic:        "minerprobe/miners",
		HTTPAddr:         ":8080",
		LogLevel:         slog.LevelInfo,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv("MINERPROBE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STOCK_USERNAME"); v != "" {
		cfg.StockUsername = v
	}
	if v := os.Getenv("STOCK_PASSWORD"); v != "" {
		cfg.StockPassword = v
	}
	if v := os.Getenv("VNISH_PASSWORD"); v != "" {
		cfg.VNishPassword = v
	}
	if v := os.Getenv("DISCOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.DiscoveryTimeout = d
		}
	}
	if v := os.Getenv("SEARCH_MAKES"); v != "" {
		for _, s := range splitList(v) {
			if m, ok := miner.ParseMake(s); ok {
				cfg.SearchMakes = append(cfg.SearchMakes, m)
			}
		}
	}
	if v := os.Getenv("SEARCH_FIRMWARES"); v != "" {
		for _, s := range splitList(v) {
			if f, ok := miner.ParseFirmware(s); ok {
				cfg.SearchFirmwares = append(cfg.SearchFirmwares, f)
			}
		}
	}
	if v := os.Getenv("SCAN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScanConcurrency = n
		}
	}
	if v := os.Getenv("SCAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ScanTimeout = d
		}
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	// NETWORK_CIDR takes any target syntax: CIDR, a-b range or octet pattern.
	if v := os.Getenv("NETWORK_CIDR"); v != "" {
		cfg.NetworkTargets = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = publish.SplitBrokers(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTTBroker = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		cfg.MQTTTopic = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			cfg.LogLevel = lvl
		}
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
