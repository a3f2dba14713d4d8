/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metrics.go
Description: Prometheus metrics for fanalyzer. MetricsCollector is a core.Reporter that
counts files, analyzer attachments, detachments, events and delivered/missing bytes,
together with Go runtime and process collectors, and serves them for scraping.
*/

package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "fanalyzer"

var _ core.Reporter = (*MetricsCollector)(nil)

// MetricsCollector exports analysis telemetry as Prometheus metrics.
// Each collector owns its registry so several can live in one process.
type MetricsCollector struct {
	registry *prometheus.Registry
	logger   *logrus.Logger

	filesOpened      prometheus.Counter
	filesClosed      *prometheus.CounterVec
	filesOpen        prometheus.Gauge
	attached         *prometheus.CounterVec
	attachFailures   *prometheus.CounterVec
	detached         *prometheus.CounterVec
	events           *prometheus.CounterVec
	undeliveredBytes prometheus.Counter
	seenBytes        prometheus.Counter
	missingBytes     prometheus.Counter
	overflowBytes    prometheus.Counter
	fileDuration     prometheus.Histogram

	server  *http.Server
	running bool
	mu      sync.Mutex
}

// NewMetricsCollector creates a collector with its own registry
func NewMetricsCollector(logger *logrus.Logger) *MetricsCollector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		filesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_opened_total",
			Help:      "Files opened for analysis.",
		}),
		filesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_closed_total",
			Help:      "Files finished, by whether end of file was reached.",
		}, []string{"eof"}),
		filesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_open",
			Help:      "Files currently being analyzed.",
		}),
		attached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzers_attached_total",
			Help:      "Analyzers attached to files.",
		}, []string{"analyzer"}),
		attachFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attach_failures_total",
			Help:      "Analyzer attach attempts that were rejected.",
		}, []string{"analyzer"}),
		detached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzers_detached_total",
			Help:      "Analyzers detached from files, by reason.",
		}, []string{"analyzer", "reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events emitted by analyzers.",
		}, []string{"analyzer", "event"}),
		undeliveredBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undelivered_bytes_total",
			Help:      "Bytes reported to analyzers as undelivered.",
		}),
		seenBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seen_bytes_total",
			Help:      "Bytes streamed to analyzers.",
		}),
		missingBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_bytes_total",
			Help:      "Bytes missing from finished files.",
		}),
		overflowBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overflow_bytes_total",
			Help:      "Bytes given up because the reassembly buffer was full.",
		}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time from opening a file to finishing it.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	mc.registry.MustRegister(
		mc.filesOpened,
		mc.filesClosed,
		mc.filesOpen,
		mc.attached,
		mc.attachFailures,
		mc.detached,
		mc.events,
		mc.undeliveredBytes,
		mc.seenBytes,
		mc.missingBytes,
		mc.overflowBytes,
		mc.fileDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return mc
}

// Registry returns the registry the metrics live in
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler returns the HTTP handler serving the metrics
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// Start serves /metrics on addr until Stop is called or ctx is done.
// It returns the address actually listened on.
func (mc *MetricsCollector) Start(ctx context.Context, addr string) (string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.running {
		return "", fmt.Errorf("metrics server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", mc.Handler())
	mc.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	mc.running = true

	go func() {
		if err := mc.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mc.logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = mc.Stop()
	}()

	mc.logger.WithField("addr", listener.Addr().String()).Info("Metrics server started")
	return listener.Addr().String(), nil
}

// Stop shuts the metrics server down
func (mc *MetricsCollector) Stop() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.running {
		return nil
	}
	mc.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}

	mc.logger.Info("Metrics server stopped")
	return nil
}

// IsRunning reports whether the metrics server is up
func (mc *MetricsCollector) IsRunning() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.running
}

func (mc *MetricsCollector) OnFileOpened(info core.FileInfo) {
	mc.filesOpened.Inc()
	mc.filesOpen.Inc()
}

func (mc *MetricsCollector) OnAnalyzerAttached(fileID string, tag interfaces.Tag) {
	mc.attached.WithLabelValues(tag.String()).Inc()
}

func (mc *MetricsCollector) OnAttachFailed(fileID string, tag interfaces.Tag, err error) {
	mc.attachFailures.WithLabelValues(tag.String()).Inc()
}

func (mc *MetricsCollector) OnAnalyzerDetached(fileID string, tag interfaces.Tag, reason core.DetachReason) {
	mc.detached.WithLabelValues(tag.String(), string(reason)).Inc()
}

func (mc *MetricsCollector) OnUndelivered(fileID string, offset, length uint64) {
	mc.undeliveredBytes.Add(float64(length))
}

func (mc *MetricsCollector) OnEvent(event interfaces.Event) {
	mc.events.WithLabelValues(event.Tag.String(), event.Name).Inc()
}

func (mc *MetricsCollector) OnFileClosed(info core.FileInfo) {
	mc.filesOpen.Dec()
	mc.filesClosed.WithLabelValues(strconv.FormatBool(info.EndOfFile)).Inc()
	mc.seenBytes.Add(float64(info.SeenBytes))
	mc.missingBytes.Add(float64(info.MissingBytes))
	mc.overflowBytes.Add(float64(info.OverflowBytes))
	if !info.Started.IsZero() && !info.Finished.IsZero() {
		mc.fileDuration.Observe(info.Finished.Sub(info.Started).Seconds())
	}
}
