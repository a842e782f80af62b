package netutil

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"
)

// MinerPorts are the ports a miner answers on: the cgminer API and the
// web dashboard.
var MinerPorts = []int{4028, 80}

// PortScanner checks TCP reachability of hosts.
type PortScanner struct {
	timeout     time.Duration
	concurrency int
	ports       []int
}

// PortScannerOption configures a PortScanner.
type PortScannerOption func(*PortScanner)

// WithScanTimeout sets the timeout for each connection attempt.
func WithScanTimeout(timeout time.Duration) PortScannerOption {
	return func(ps *PortScanner) {
		ps.timeout = timeout
	}
}

// WithScanConcurrency sets the maximum number of hosts checked at once.
func WithScanConcurrency(concurrency int) PortScannerOption {
	return func(ps *PortScanner) {
		ps.concurrency = concurrency
	}
}

// WithPorts replaces the ports checked per host.
func WithPorts(ports ...int) PortScannerOption {
	return func(ps *PortScanner) {
		ps.ports = ports
	}
}

// NewPortScanner creates a new port scanner.
func NewPortScanner(opts ...PortScannerOption) *PortScanner {
	ps := &PortScanner{
		timeout:     2 * time.Second,
		concurrency: 100,
		ports:       MinerPorts,
	}

	for _, opt := range opts {
		opt(ps)
	}
	if ps.concurrency < 1 {
		ps.concurrency = 1
	}

	return ps
}

// IsPortOpen checks if a TCP port is open on the given host.
func (ps *PortScanner) IsPortOpen(ctx context.Context, host string, port int) bool {
	dialer := &net.Dialer{Timeout: ps.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// IsReachable reports whether any configured port accepts a connection.
func (ps *PortScanner) IsReachable(ctx context.Context, host string) bool {
	for _, port := range ps.ports {
		if ps.IsPortOpen(ctx, host, port) {
			return true
		}
	}
	return false
}

// ScanHosts returns the hosts with at least one configured port open, in
// input order.
func (ps *PortScanner) ScanHosts(ctx context.Context, hosts []string) []string {
	open := make([]bool, len(hosts))

	var wg sync.WaitGroup
	sem := make(chan struct{}, ps.concurrency)

scan:
	for i, host := range hosts {
		select {
		case <-ctx.Done():
			break scan
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			defer func() { <-sem }()

			open[i] = ps.IsReachable(ctx, h)
		}(i, host)
	}
	wg.Wait()

	var reachable []string
	for i, ok := range open {
		if ok {
			reachable = append(reachable, hosts[i])
		}
	}
	return reachable
}
