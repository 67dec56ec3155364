package models

import (
	"fmt"
	"maps"
	"time"

	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
)

// DefaultInterval is the refresh interval, in seconds, of the default configuration.
const DefaultInterval = 25

// MaxInterval is the longest accepted sampling interval, in seconds.
const MaxInterval = 24 * 60 * 60

// RedisConfig holds the connection parameters for the redis probe.
type RedisConfig struct {
	// Host is the redis server host (default "localhost")
	Host string `json:"host,omitempty"`

	// Port is the redis server port (default 6379)
	Port int `json:"port,omitempty"`

	// Password is the optional AUTH password
	Password string `json:"password,omitempty"`

	// DB is the logical database index
	DB int `json:"db,omitempty"`
}

// Addr returns host:port with defaults applied.
func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Configuration is the remotely controlled agent configuration.
//
// It is fetched from the collector and replaced wholesale, never merged.
type Configuration struct {
	Enabled  bool    `json:"enabled"`
	Interval float64 `json:"interval"`

	CPU        bool `json:"cpu"`
	Memory     bool `json:"memory"`
	Network    bool `json:"network"`
	Partitions bool `json:"partitions"`
	IO         bool `json:"io"`
	Processes  bool `json:"processes"`
	IPv4       bool `json:"ipv4"`
	IPv6       bool `json:"ipv6"`

	// Ping maps a region name to the host probed for that region
	Ping map[string]string `json:"ping,omitempty"`

	// Redis is nil when the redis probe is disabled
	Redis *RedisConfig `json:"redis,omitempty"`

	Nginx bool `json:"nginx,omitempty"`

	// NginxStatusURL overrides the stub_status location
	NginxStatusURL string `json:"nginx_status_url,omitempty"`
}

// DefaultConfiguration returns the safe configuration used before the first
// successful fetch: disabled, every module off, short refresh interval.
func DefaultConfiguration() Configuration {
	return Configuration{
		Enabled:  false,
		Interval: DefaultInterval,
	}
}

// Validate checks that the configuration can drive the sampling loop.
func (c Configuration) Validate() error {
	if !(c.Interval > 0) {
		return fmt.Errorf("%w: interval must be positive, got %v", internalerrors.ErrInvalidConfiguration, c.Interval)
	}
	if c.Interval > MaxInterval {
		return fmt.Errorf("%w: interval must not exceed %d seconds, got %v", internalerrors.ErrInvalidConfiguration, MaxInterval, c.Interval)
	}
	for region, host := range c.Ping {
		if host == "" {
			return fmt.Errorf("%w: empty ping host for region %q", internalerrors.ErrInvalidConfiguration, region)
		}
	}
	return nil
}

// IntervalDuration converts Interval to a time.Duration, saturating at
// MaxInterval.
func (c Configuration) IntervalDuration() time.Duration {
	if c.Interval > MaxInterval {
		return MaxInterval * time.Second
	}
	return time.Duration(c.Interval * float64(time.Second))
}

// Clone returns a deep copy so that callers can never alias cached state.
func (c Configuration) Clone() Configuration {
	out := c
	if c.Ping != nil {
		out.Ping = maps.Clone(c.Ping)
	}
	if c.Redis != nil {
		r := *c.Redis
		out.Redis = &r
	}
	return out
}
