// Package models defines the data structures shared by the agent and the collector.
package models

import "maps"

// Snapshot is the result of one sampling cycle.
//
// Keys are metric names ("ts", "load_average", "cpu", "ping_<region>", ...),
// values are numbers, nested maps, sequences or nil when a reader failed.
// A snapshot must not be modified once it has been enqueued.
type Snapshot map[string]any

// Clone returns a shallow copy of the snapshot.
//
// Nested values are shared; readers never mutate them after collection.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// Timestamp returns the "ts" value of the snapshot in Unix seconds, or 0.
func (s Snapshot) Timestamp() float64 {
	switch ts := s["ts"].(type) {
	case float64:
		return ts
	case int64:
		return float64(ts)
	case int:
		return float64(ts)
	}
	return 0
}

// Hostname extracts uname.node from the snapshot if present.
func (s Snapshot) Hostname() string {
	switch uname := s["uname"].(type) {
	case map[string]any:
		if h, ok := uname["node"].(string); ok {
			return h
		}
	case map[string]string:
		return uname["node"]
	}
	return ""
}
