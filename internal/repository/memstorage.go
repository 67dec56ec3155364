package repository

import (
	"context"
	"sync"

	"github.com/Schera-ole/hostagent/internal/config"
	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	models "github.com/Schera-ole/hostagent/internal/model"
)

type agentState struct {
	config    models.Configuration
	snapshots []models.SnapshotRecord
}

// MemStorage implements the Repository interface using in-memory storage.
type MemStorage struct {
	// mu provides thread-safe access to agents
	mu sync.RWMutex

	// agents maps a token to its configuration and recent snapshots
	agents map[string]*agentState

	// retention is the number of snapshots kept per agent
	retention int
}

// NewMemStorage creates a new in-memory storage keeping the last
// config.SnapshotRetention snapshots of every agent.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		agents:    make(map[string]*agentState),
		retention: config.SnapshotRetention,
	}
}

func (ms *MemStorage) RegisterAgent(ctx context.Context, token string, config models.Configuration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.agents[token]; !exists {
		ms.agents[token] = &agentState{config: config.Clone()}
	}
	return nil
}

func (ms *MemStorage) GetConfig(ctx context.Context, token string) (models.Configuration, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	agent, exists := ms.agents[token]
	if !exists {
		return models.Configuration{}, internalerrors.ErrAgentNotFound
	}
	return agent.config.Clone(), nil
}

func (ms *MemStorage) SetConfig(ctx context.Context, token string, config models.Configuration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	agent, exists := ms.agents[token]
	if !exists {
		return internalerrors.ErrAgentNotFound
	}
	agent.config = config.Clone()
	return nil
}

// SaveSnapshot appends a snapshot, evicting the oldest once the retention is reached.
func (ms *MemStorage) SaveSnapshot(ctx context.Context, token string, record models.SnapshotRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	agent, exists := ms.agents[token]
	if !exists {
		return internalerrors.ErrAgentNotFound
	}
	agent.snapshots = append(agent.snapshots, record)
	if over := len(agent.snapshots) - ms.retention; over > 0 {
		agent.snapshots = append(agent.snapshots[:0:0], agent.snapshots[over:]...)
	}
	return nil
}

func (ms *MemStorage) ListSnapshots(ctx context.Context, token string, limit int) ([]models.SnapshotRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	agent, exists := ms.agents[token]
	if !exists {
		return nil, internalerrors.ErrAgentNotFound
	}
	snapshots := agent.snapshots
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[len(snapshots)-limit:]
	}
	result := make([]models.SnapshotRecord, len(snapshots))
	copy(result, snapshots)
	return result, nil
}

// Ping always succeeds for MemStorage.
func (ms *MemStorage) Ping(ctx context.Context) error {
	return nil
}

func (ms *MemStorage) Close() error {
	return nil
}
