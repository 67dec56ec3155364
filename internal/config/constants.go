// Package config provides the collector server configuration.
package config

const (
	// DefaultAddress is the listen address of the collector.
	DefaultAddress = "localhost:8080"

	// DefaultMigrationsDir holds the SQL migrations applied at start.
	DefaultMigrationsDir = "migrations"

	// SnapshotRetention is the number of snapshots kept per agent.
	SnapshotRetention = 1000
)
