// Package metrics exposes Prometheus collectors for scans, miner commands
// and the telemetry of the last collected records.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
)

const namespace = "minerprobe"

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	commandDuration   *prometheus.HistogramVec
	commandErrors     *prometheus.CounterVec
	scanDuration      prometheus.Histogram
	scanHosts         *prometheus.GaugeVec
	minersFound       *prometheus.GaugeVec
	minerHashrate     *prometheus.GaugeVec
	minerWattage      *prometheus.GaugeVec
	minerTemperature  *prometheus.GaugeVec
	minerMining       *prometheus.GaugeVec
	published         *prometheus.CounterVec
}

var minerLabels = []string{"ip", "make", "model"}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Histogram of miner command latencies by transport and command.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind", "command"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Total miner commands that failed, by transport and command.",
		}, []string{"kind", "command"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Histogram of network scan durations.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		scanHosts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_hosts",
			Help:      "Hosts seen by the last scan, by phase (scanned, responsive, failed).",
		}, []string{"phase"}),
		minersFound: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "miners_found",
			Help:      "Miners identified by the last scan, by make and firmware.",
		}, []string{"make", "firmware"}),
		minerHashrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "miner_hashrate_ths",
			Help:      "Reported hash rate in TH/s.",
		}, minerLabels),
		minerWattage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "miner_wattage_watts",
			Help:      "Reported power draw in watts.",
		}, minerLabels),
		minerTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "miner_temperature_celsius",
			Help:      "Average board temperature.",
		}, minerLabels),
		minerMining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "miner_is_mining",
			Help:      "1 when the miner reports it is hashing.",
		}, minerLabels),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Records handed to publishers, by sink and result.",
		}, []string{"sink", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.commandDuration,
		m.commandErrors,
		m.scanDuration,
		m.scanHosts,
		m.minersFound,
		m.minerHashrate,
		m.minerWattage,
		m.minerTemperature,
		m.minerMining,
		m.published,
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CommandObserver returns a collector callback recording command latency.
func (m *Metrics) CommandObserver() collector.Observer {
	return func(cmd miner.Command, elapsed time.Duration, err error) {
		if m == nil {
			return
		}
		kind := cmd.Kind.String()
		m.commandDuration.WithLabelValues(kind, cmd.Name).Observe(elapsed.Seconds())
		if err != nil {
			m.commandErrors.WithLabelValues(kind, cmd.Name).Inc()
		}
	}
}

// ObserveScan records a finished scan and the miners it collected.
func (m *Metrics) ObserveScan(res *discovery.ScanResult) {
	if m == nil || res == nil {
		return
	}
	m.scanDuration.Observe(res.Duration.Seconds())
	m.scanHosts.WithLabelValues("scanned").Set(float64(res.ScannedIPs))
	m.scanHosts.WithLabelValues("responsive").Set(float64(res.ResponsiveHosts))
	m.scanHosts.WithLabelValues("failed").Set(float64(len(res.Errors)))

	m.minersFound.Reset()
	for _, f := range res.Miners {
		if f.Identity != nil {
			m.minersFound.WithLabelValues(string(f.Identity.Make), string(f.Identity.Firmware)).Inc()
		}
		if f.Data != nil {
			m.ObserveMiner(f.Data)
		}
	}
}

// ObserveMiner sets the per-miner gauges from a collected record. Values the
// miner did not report are left untouched.
func (m *Metrics) ObserveMiner(data *miner.MinerData) {
	if m == nil || data == nil {
		return
	}
	labels := prometheus.Labels{
		"ip":    data.IP,
		"make":  string(data.DeviceInfo.Make),
		"model": data.DeviceInfo.Model.Name,
	}
	if data.Hashrate != nil {
		m.minerHashrate.With(labels).Set(data.Hashrate.As(miner.UnitTeraHash).Value)
	}
	if data.Wattage != nil {
		m.minerWattage.With(labels).Set(*data.Wattage)
	}
	if data.AverageTemperature != nil {
		m.minerTemperature.With(labels).Set(*data.AverageTemperature)
	}
	mining := 0.0
	if data.IsMining {
		mining = 1
	}
	m.minerMining.With(labels).Set(mining)
}

// Published counts a record handed to sink.
func (m *Metrics) Published(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(sink, result).Inc()
}
