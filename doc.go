// Package hostagent implements a host monitoring agent and a reference
// collector for the snapshots it produces.
//
// The agent runs two concurrent units that share only a bounded queue and a
// configuration cache:
//   - Sampler: every interval reads host metrics (load, CPU, memory, network,
//     partitions, disk IO, processes, file handles, TCP ping, public IP, Redis
//     and nginx) and enqueues a snapshot
//   - Delivery worker: sends snapshots to the collector with bounded retries
//     and keeps the remote configuration fresh
//
// The queue drops the oldest snapshot when it is full, so a slow or
// unreachable collector never stalls sampling. Shutdown discards pending
// snapshots and gives the in-flight one a short, bounded final attempt.
//
// Features:
//   - gzip JSON payloads signed with HMAC SHA256
//   - Bearer token authentication; rejected credentials stop delivery
//   - systemd readiness and watchdog notifications
//   - Prometheus counters for the queue and the worker
//   - Collector with in-memory or PostgreSQL storage and audit logging
//
// Both the agent and the collector are configured via command-line flags and
// environment variables.
package hostagent
