package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/powerhive/minerprobe/internal/netutil"
)

// Scanner discovers miners across address ranges.
type Scanner struct {
	detector    *Detector
	portScanner *netutil.PortScanner
	opts        ScanOptions
	logger      *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithConcurrency sets the maximum number of hosts handled at once.
func WithConcurrency(concurrency int) ScannerOption {
	return func(s *Scanner) {
		s.opts.Concurrency = concurrency
	}
}

// WithPortCheck enables or disables the reachability pass.
func WithPortCheck(enabled bool) ScannerOption {
	return func(s *Scanner) {
		s.opts.PortCheck = enabled
	}
}

// WithPortTimeout sets the connection timeout of the reachability pass.
func WithPortTimeout(timeout time.Duration) ScannerOption {
	return func(s *Scanner) {
		s.opts.PortTimeout = timeout
	}
}

// WithCollect makes the scanner collect telemetry from found miners.
func WithCollect(enabled bool) ScannerOption {
	return func(s *Scanner) {
		s.opts.Collect = enabled
	}
}

// WithPortScanner replaces the reachability checker.
func WithPortScanner(ps *netutil.PortScanner) ScannerOption {
	return func(s *Scanner) {
		s.portScanner = ps
	}
}

// WithScanLogger sets the logger.
func WithScanLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a scanner identifying hosts with detector.
func NewScanner(detector *Detector, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		detector: detector,
		opts:     DefaultScanOptions(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.opts.Concurrency < 1 {
		s.opts.Concurrency = 1
	}

	if s.portScanner == nil {
		s.portScanner = netutil.NewPortScanner(
			netutil.WithScanTimeout(s.opts.PortTimeout),
			netutil.WithScanConcurrency(s.opts.Concurrency*4),
		)
	}
	s.logger = s.logger.With(slog.String("component", "scanner"))

	return s
}

// Scan expands target (CIDR, start-end range, octet pattern or list) and
// scans every address.
func (s *Scanner) Scan(ctx context.Context, target string) (*ScanResult, error) {
	ips, err := netutil.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, target, ips, nil), nil
}

// ScanNetwork scans a CIDR range for miners.
// Example: "192.168.1.0/24"
func (s *Scanner) ScanNetwork(ctx context.Context, cidr string) (*ScanResult, error) {
	ips, err := netutil.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, cidr, ips, nil), nil
}

// ScanRange scans an IP range for miners.
// Example: "192.168.1.1" to "192.168.1.254"
func (s *Scanner) ScanRange(ctx context.Context, startIP, endIP string) (*ScanResult, error) {
	ips, err := netutil.ParseRange(startIP, endIP)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, startIP+"-"+endIP, ips, nil), nil
}

// ScanOctets scans an octet pattern such as "192.168.1-3.1-50".
func (s *Scanner) ScanOctets(ctx context.Context, pattern string) (*ScanResult, error) {
	ips, err := netutil.ParseOctets(pattern)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, pattern, ips, nil), nil
}

// ScanHosts scans specific IP addresses for miners.
func (s *Scanner) ScanHosts(ctx context.Context, hosts []string) *ScanResult {
	return s.scan(ctx, "", hosts, nil)
}

// Stream scans target and delivers each miner as soon as it is identified.
// The channel is closed when the scan ends; the final result, including
// per-host errors, is sent on done.
func (s *Scanner) Stream(ctx context.Context, target string) (<-chan Found, <-chan *ScanResult, error) {
	ips, err := netutil.ParseTarget(target)
	if err != nil {
		return nil, nil, err
	}

	found := make(chan Found, s.opts.Concurrency)
	done := make(chan *ScanResult, 1)
	go func() {
		defer close(done)
		res := s.scan(ctx, target, ips, func(f Found) {
			select {
			case found <- f:
			case <-ctx.Done():
			}
		})
		close(found)
		done <- res
	}()
	return found, done, nil
}

// scan is the two-phase worker: an optional port check, then discovery on
// reachable hosts with at most Concurrency hosts in flight.
func (s *Scanner) scan(ctx context.Context, target string, ips []string, emit func(Found)) *ScanResult {
	result := &ScanResult{
		ID:         uuid.NewString(),
		Target:     target,
		Miners:     make([]Found, 0),
		Errors:     make(map[string]string),
		StartedAt:  time.Now(),
		ScannedIPs: len(ips),
	}

	hosts := ips
	if s.opts.PortCheck {
		hosts = s.portScanner.ScanHosts(ctx, ips)
	}
	result.ResponsiveHosts = len(hosts)

	s.logger.Info("scan started",
		slog.String("scan_id", result.ID),
		slog.String("target", target),
		slog.Int("addresses", len(ips)),
		slog.Int("reachable", len(hosts)),
	)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.opts.Concurrency)
	)

scanLoop:
	for _, host := range hosts {
		select {
		case <-ctx.Done():
			break scanLoop
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			defer func() { <-sem }()

			f, err := s.scanHost(ctx, ip)

			mu.Lock()
			if err != nil {
				result.Errors[ip] = err.Error()
			} else {
				result.Miners = append(result.Miners, f)
			}
			mu.Unlock()

			if err == nil && emit != nil {
				emit(f)
			}
		}(host)
	}

	wg.Wait()
	result.Duration = time.Since(result.StartedAt)

	s.logger.Info("scan finished",
		slog.String("scan_id", result.ID),
		slog.Int("miners", len(result.Miners)),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.Duration),
	)
	return result
}

func (s *Scanner) scanHost(ctx context.Context, ip string) (Found, error) {
	if !s.opts.Collect {
		id, err := s.detector.Identify(ctx, ip)
		if err != nil {
			return Found{}, err
		}
		return Found{Identity: id}, nil
	}

	data, id, err := s.detector.Collect(ctx, ip)
	if err != nil {
		if id != nil {
			// Identified but without a backend: still a miner.
			s.logger.Debug("no backend", slog.String("host", ip), slog.Any("error", err))
			return Found{Identity: id}, nil
		}
		return Found{}, err
	}
	return Found{Identity: id, Data: data}, nil
}
