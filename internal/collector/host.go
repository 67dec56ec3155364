// Package collector reads host and service metrics for one sampling cycle.
//
// Every reader is single-shot and bounded by a timeout. A failing reader
// contributes nil to the snapshot; it never aborts the cycle and is never
// retried.
package collector

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"go.uber.org/zap"

	models "github.com/Schera-ole/hostagent/internal/model"
)

const (
	// DefaultProbeTimeout bounds every network probe (ping, ip, redis, nginx).
	DefaultProbeTimeout = 5 * time.Second

	// DefaultIPEchoURL answers with the caller's public address as plain text.
	DefaultIPEchoURL = "https://api64.ipify.org"

	// DefaultNginxStatusURL is the usual stub_status location.
	DefaultNginxStatusURL = "http://127.0.0.1/nginx_status"
)

// Host collects snapshots from the local machine.
type Host struct {
	version      string
	probeTimeout time.Duration
	ipEchoURL    string
	fileNrPath   string
	httpClient   *http.Client
	logger       *zap.SugaredLogger

	staticOnce sync.Once
	static     models.Snapshot
}

// Option configures a Host.
type Option func(*Host)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.probeTimeout = d
		}
	}
}

// WithIPEchoURL overrides DefaultIPEchoURL.
func WithIPEchoURL(url string) Option {
	return func(h *Host) {
		if url != "" {
			h.ipEchoURL = url
		}
	}
}

// NewHost creates a Host collector reporting the given agent version.
func NewHost(version string, logger *zap.SugaredLogger, opts ...Option) *Host {
	h := &Host{
		version:      version,
		probeTimeout: DefaultProbeTimeout,
		ipEchoURL:    DefaultIPEchoURL,
		fileNrPath:   defaultFileNrPath,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.httpClient = &http.Client{Timeout: h.probeTimeout}
	return h
}

// Collect builds one snapshot according to config.
func (h *Host) Collect(ctx context.Context, config models.Configuration) models.Snapshot {
	data := h.staticData(ctx).Clone()
	data["ts"] = float64(time.Now().UnixNano()) / 1e9
	data["load_average"] = h.read("load_average", func() (any, error) { return loadAverage(ctx) })

	used, limit, err := fileHandles(h.fileNrPath)
	if err != nil {
		h.logger.Debugw("file handles unavailable", "error", err)
		data["file_handles_used"], data["file_handles_limit"] = nil, nil
	} else {
		data["file_handles_used"], data["file_handles_limit"] = used, limit
	}

	for region, target := range config.Ping {
		data["ping_"+region] = tcpPing(ctx, target, pingPort, h.probeTimeout)
	}

	if config.CPU {
		data["cpu"] = h.read("cpu", func() (any, error) { return cpuData(ctx) })
		data["cpu_model"] = h.read("cpu_model", func() (any, error) { return cpuModel(ctx) })
		data["cpu_count"] = h.read("cpu_count", func() (any, error) { return cpu.CountsWithContext(ctx, true) })
	}
	if config.Memory {
		data["memory"] = h.read("memory", func() (any, error) { return virtualMemory(ctx) })
		data["swap"] = h.read("swap", func() (any, error) { return swapMemory(ctx) })
	}
	if config.IPv4 {
		data["ipv4"] = h.read("ipv4", func() (any, error) { return publicIP(ctx, h.ipEchoURL, false, h.probeTimeout) })
	}
	if config.IPv6 {
		data["ipv6"] = h.read("ipv6", func() (any, error) { return publicIP(ctx, h.ipEchoURL, true, h.probeTimeout) })
	}
	if config.Network {
		data["network"] = h.read("network", func() (any, error) { return network(ctx) })
	}
	if config.Partitions {
		data["partitions_metadata"] = h.read("partitions_metadata", func() (any, error) { return partitionsMetadata(ctx) })
		data["partitions_usage"] = h.read("partitions_usage", func() (any, error) { return partitionsUsage(ctx) })
	}
	if config.IO {
		data["io"] = h.read("io", func() (any, error) { return diskIO(ctx) })
	}
	if config.Processes {
		data["processes"] = h.read("processes", func() (any, error) { return processes(ctx) })
	}
	if config.Redis != nil {
		redisConfig := *config.Redis
		data["redis"] = h.read("redis", func() (any, error) { return redisMetrics(ctx, redisConfig, h.probeTimeout) })
	}
	if config.Nginx {
		statusURL := config.NginxStatusURL
		if statusURL == "" {
			statusURL = DefaultNginxStatusURL
		}
		data["nginx"] = h.read("nginx", func() (any, error) { return nginxMetrics(ctx, h.httpClient, statusURL) })
	}

	return data
}

// read runs one reader and converts a failure to nil.
func (h *Host) read(name string, fn func() (any, error)) any {
	value, err := fn()
	if err != nil {
		h.logger.Debugw("metric reader failed", "reader", name, "error", err)
		return nil
	}
	return value
}

func (h *Host) staticData(ctx context.Context) models.Snapshot {
	h.staticOnce.Do(func() {
		h.static = models.Snapshot{
			"version":   h.version,
			"uname":     h.read("uname", func() (any, error) { return uname(ctx) }),
			"boot_time": h.read("boot_time", func() (any, error) { return host.BootTimeWithContext(ctx) }),
		}
	})
	return h.static
}

func uname(ctx context.Context) (map[string]any, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"system":  info.OS,
		"node":    info.Hostname,
		"release": info.KernelVersion,
		"version": info.PlatformVersion,
		"machine": info.KernelArch,
	}, nil
}

func loadAverage(ctx context.Context) ([]float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return []float64{avg.Load1, avg.Load5, avg.Load15}, nil
}
