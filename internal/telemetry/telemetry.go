// Package telemetry exposes the agent's internal counters to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Schera-ole/hostagent/internal/worker"
)

const namespace = "hostagent"

// QueueStats is the read side of the delivery queue.
type QueueStats interface {
	Len() int
	Cap() int
	Dropped() uint64
	Rejected() uint64
}

// WorkerStats is the read side of the delivery worker.
type WorkerStats interface {
	Stats() worker.Stats
	State() worker.State
	Buffered() int
	DeliveryDisabled() bool
}

// ConfigStats is the read side of the configuration cache.
type ConfigStats interface {
	Fetched() bool
	LastRefresh() time.Time
}

// NewRegistry builds a registry whose collectors read the given components
// on every scrape.
func NewRegistry(q QueueStats, w WorkerStats, c ConfigStats) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	gauge := func(name, help string, fn func() float64) {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, fn))
	}
	counter := func(name, help string, fn func() float64) {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, fn))
	}

	gauge("queue_length", "Items waiting in the delivery queue.", func() float64 { return float64(q.Len()) })
	gauge("queue_capacity", "Capacity of the delivery queue.", func() float64 { return float64(q.Cap()) })
	counter("queue_dropped_total", "Items discarded by the drop-oldest policy.", func() float64 { return float64(q.Dropped()) })
	counter("queue_rejected_total", "Items refused after shutdown.", func() float64 { return float64(q.Rejected()) })

	counter("snapshots_delivered_total", "Snapshots accepted by the collector.", func() float64 { return float64(w.Stats().Delivered) })
	counter("snapshots_failed_total", "Snapshots dropped after exhausting retries.", func() float64 { return float64(w.Stats().Failed) })
	counter("snapshots_rejected_total", "Snapshots refused by the collector.", func() float64 { return float64(w.Stats().Rejected) })
	counter("snapshots_discarded_total", "Snapshots discarded while delivery was disabled.", func() float64 { return float64(w.Stats().Discarded) })
	counter("send_retries_total", "Repeated delivery attempts.", func() float64 { return float64(w.Stats().Retries) })
	counter("config_refreshes_total", "Successful configuration refreshes.", func() float64 { return float64(w.Stats().ConfigRefreshes) })
	counter("config_failures_total", "Failed configuration refreshes.", func() float64 { return float64(w.Stats().ConfigFailures) })
	gauge("worker_state", "Delivery worker state (0 starting, 1 running, 2 draining, 3 stopped).", func() float64 { return float64(w.State()) })
	gauge("worker_buffered", "Snapshots held in the in-flight buffer.", func() float64 { return float64(w.Buffered()) })
	gauge("delivery_disabled", "1 once the collector rejected the agent credentials.", func() float64 { return boolToFloat(w.DeliveryDisabled()) })

	gauge("config_fetched", "1 once a configuration was fetched from the collector.", func() float64 { return boolToFloat(c.Fetched()) })
	gauge("config_last_refresh_timestamp_seconds", "Unix time of the last successful refresh.", func() float64 {
		last := c.LastRefresh()
		if last.IsZero() {
			return 0
		}
		return float64(last.Unix())
	})

	return registry
}

// Serve exposes registry on addr under /metrics until ctx ends.
func Serve(ctx context.Context, addr string, registry *prometheus.Registry, logger *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("metrics listener started", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
