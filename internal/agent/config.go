package agent

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig is the local configuration of the agent process. The sampling
// configuration itself is owned by the collector.
type AgentConfig struct {
	Address        string
	ConfigDir      string
	Key            string
	QueueSize      int
	StopTimeout    time.Duration
	MetricsAddress string
	LogLevel       string
	Debug          bool
}

// NewAgentConfig reads the configuration from command line flags and the
// environment. Environment variables win over flags; the .env file in the
// config directory is loaded before the environment is consulted.
func NewAgentConfig() (*AgentConfig, error) {
	return parseAgentConfig(flag.CommandLine, os.Args[1:])
}

func parseAgentConfig(fs *flag.FlagSet, args []string) (*AgentConfig, error) {
	config := &AgentConfig{
		Address:     DefaultAddress,
		ConfigDir:   DefaultConfigDir,
		QueueSize:   DefaultQueueSize,
		StopTimeout: DefaultStopTimeout,
	}

	address := fs.String("a", config.Address, "Collector base URL")
	configDir := fs.String("c", config.ConfigDir, "Directory holding TOKEN and .env")
	key := fs.String("k", "", "Key for payload signing")
	queueSize := fs.Int("q", config.QueueSize, "Maximum number of pending snapshots")
	stopTimeout := fs.Duration("t", config.StopTimeout, "Upper bound for the orderly shutdown")
	metricsAddress := fs.String("m", "", "Address of the Prometheus listener, empty to disable")
	logLevel := fs.String("l", "", "Log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envValue := os.Getenv("CONFIG_DIR"); envValue != "" {
		*configDir = envValue
	}
	if err := LoadEnvFile(*configDir); err != nil {
		return nil, err
	}

	envStrVars := map[string]*string{
		"ADDRESS":         address,
		"KEY":             key,
		"METRICS_ADDRESS": metricsAddress,
		"LOG_LEVEL":       logLevel,
	}
	for envVar, flag := range envStrVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	if envValue := os.Getenv("QUEUE_SIZE"); envValue != "" {
		size, err := strconv.Atoi(envValue)
		if err != nil {
			return nil, fmt.Errorf("invalid QUEUE_SIZE value %q: %w", envValue, err)
		}
		*queueSize = size
	}
	if envValue := os.Getenv("STOP_TIMEOUT"); envValue != "" {
		timeout, err := time.ParseDuration(envValue)
		if err != nil {
			return nil, fmt.Errorf("invalid STOP_TIMEOUT value %q: %w", envValue, err)
		}
		*stopTimeout = timeout
	}
	if envValue := os.Getenv("DEBUG"); envValue != "" {
		debug, err := strconv.ParseBool(envValue)
		if err != nil {
			return nil, fmt.Errorf("invalid DEBUG value %q: %w", envValue, err)
		}
		config.Debug = debug
	}

	if *queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", *queueSize)
	}
	if *stopTimeout <= 0 {
		return nil, fmt.Errorf("stop timeout must be positive, got %s", *stopTimeout)
	}

	config.Address = normalizeAddress(*address)
	config.ConfigDir = *configDir
	config.Key = *key
	config.QueueSize = *queueSize
	config.StopTimeout = *stopTimeout
	config.MetricsAddress = *metricsAddress
	config.LogLevel = *logLevel

	return config, nil
}

// normalizeAddress accepts both "host:port" and a full URL.
func normalizeAddress(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}
