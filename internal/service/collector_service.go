// Package service provides the business logic layer of the collector.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Schera-ole/hostagent/internal/audit"
	models "github.com/Schera-ole/hostagent/internal/model"
	"github.com/Schera-ole/hostagent/internal/repository"
)

// CollectorService provides methods for managing agents and their snapshots.
//
// It delegates storage to an underlying repository implementation.
type CollectorService struct {
	// repository is the underlying data storage implementation
	repository repository.Repository

	auditLogger audit.AuditLogger
	now         func() time.Time
}

// NewCollectorService creates a new CollectorService with the specified repository.
// A nil auditLogger disables auditing.
func NewCollectorService(repo repository.Repository, auditLogger audit.AuditLogger) *CollectorService {
	return &CollectorService{
		repository:  repo,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// RegisterAgents creates the given agents with the default configuration
// enabled. Already registered agents keep their configuration.
func (cs *CollectorService) RegisterAgents(ctx context.Context, tokens []string, logger *zap.SugaredLogger) error {
	config := models.DefaultConfiguration()
	config.Enabled = true
	for _, token := range tokens {
		if err := cs.repository.RegisterAgent(ctx, token, config); err != nil {
			return err
		}
	}
	logger.Infof("registered %d agent tokens", len(tokens))
	return nil
}

// Authenticate checks that token belongs to a registered agent.
func (cs *CollectorService) Authenticate(ctx context.Context, token string) error {
	_, err := cs.repository.GetConfig(ctx, token)
	return err
}

// Config returns the configuration of an agent.
func (cs *CollectorService) Config(ctx context.Context, token string) (models.Configuration, error) {
	return cs.repository.GetConfig(ctx, token)
}

// UpdateConfig validates and stores a new configuration for an agent.
func (cs *CollectorService) UpdateConfig(ctx context.Context, token string, config models.Configuration) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return cs.repository.SetConfig(ctx, token, config)
}

// Ingest stores a snapshot received from an agent and records an audit event.
func (cs *CollectorService) Ingest(ctx context.Context, token string, snapshot models.Snapshot, remoteAddr string) error {
	record := models.SnapshotRecord{
		Hostname:   snapshot.Hostname(),
		ReceivedAt: cs.now().UTC(),
		Data:       snapshot,
	}
	if err := cs.repository.SaveSnapshot(ctx, token, record); err != nil {
		return err
	}
	if cs.auditLogger != nil {
		cs.auditLogger.Log(record.Hostname, remoteAddr)
	}
	return nil
}

// Snapshots returns up to limit most recent snapshots of an agent.
func (cs *CollectorService) Snapshots(ctx context.Context, token string, limit int) ([]models.SnapshotRecord, error) {
	return cs.repository.ListSnapshots(ctx, token, limit)
}

// Ping checks the repository connection.
func (cs *CollectorService) Ping(ctx context.Context) error {
	return cs.repository.Ping(ctx)
}
