// Package agent wires the sampling loop, the delivery worker and their shared
// state into a host agent process.
package agent

import "time"

// Version is reported in every snapshot. Overridden at build time with
// -ldflags "-X github.com/Schera-ole/hostagent/internal/agent.Version=...".
var Version = "1.0.6"

const (
	// DefaultConfigDir holds the TOKEN file and the optional .env file.
	DefaultConfigDir = "/etc/hostagent"

	// TokenFile is the name of the file holding the agent token.
	TokenFile = "TOKEN"

	// EnvFile is the name of the optional dotenv file.
	EnvFile = ".env"

	// DefaultAddress is the collector base URL.
	DefaultAddress = "http://localhost:8080"

	// DefaultQueueSize bounds the number of pending items.
	DefaultQueueSize = 100

	// DefaultStopTimeout bounds the orderly shutdown.
	DefaultStopTimeout = 10 * time.Second

	// stopGrace is the extra wait after the worker was force-cancelled.
	stopGrace = 2 * time.Second
)
