// Package repository stores agent configurations and received snapshots.
package repository

import (
	"context"

	models "github.com/Schera-ole/hostagent/internal/model"
)

// Repository is the collector storage.
type Repository interface {
	// RegisterAgent creates the agent with config unless it already exists.
	RegisterAgent(ctx context.Context, token string, config models.Configuration) error
	GetConfig(ctx context.Context, token string) (models.Configuration, error)
	SetConfig(ctx context.Context, token string, config models.Configuration) error
	SaveSnapshot(ctx context.Context, token string, record models.SnapshotRecord) error
	// ListSnapshots returns up to limit most recent snapshots, oldest first.
	ListSnapshots(ctx context.Context, token string, limit int) ([]models.SnapshotRecord, error)
	Ping(ctx context.Context) error
	Close() error
}
