package models

import "time"

// SnapshotRecord is a snapshot as stored by the collector.
type SnapshotRecord struct {
	Hostname   string    `json:"hostname"`
	ReceivedAt time.Time `json:"received_at"`
	Data       Snapshot  `json:"data"`
}

// AuditEvent describes one accepted snapshot.
type AuditEvent struct {
	TS        string `json:"ts"`
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
}
