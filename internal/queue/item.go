package queue

import models "github.com/Schera-ole/hostagent/internal/model"

// Item is a value carried by the queue.
//
// The set of items is closed: Snapshot, RefreshConfig and Shutdown.
// Consumers dispatch on the concrete type.
type Item interface {
	item()
}

// Snapshot carries one sampling cycle's metrics.
type Snapshot struct {
	Data models.Snapshot
}

// RefreshConfig asks the delivery worker to refresh the configuration now.
type RefreshConfig struct{}

// Shutdown is the end-of-stream sentinel. No item after it is processed.
type Shutdown struct{}

func (Snapshot) item()      {}
func (RefreshConfig) item() {}
func (Shutdown) item()      {}
