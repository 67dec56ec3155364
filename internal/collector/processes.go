package collector

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is the per-process entry of the "processes" metric.
type ProcessInfo struct {
	PID        int32    `json:"pid"`
	Name       string   `json:"name"`
	Username   string   `json:"username,omitempty"`
	Status     []string `json:"status,omitempty"`
	CPUPercent float64  `json:"cpu_percent"`
	MemoryRSS  uint64   `json:"memory_rss"`
	MemoryVMS  uint64   `json:"memory_vms"`
	NumThreads int32    `json:"num_threads"`
	CreateTime int64    `json:"create_time"`
}

func processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// the process exited between listing and inspection
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: name}
		info.Username, _ = p.UsernameWithContext(ctx)
		info.Status, _ = p.StatusWithContext(ctx)
		info.CPUPercent, _ = p.CPUPercentWithContext(ctx)
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			info.MemoryRSS = memInfo.RSS
			info.MemoryVMS = memInfo.VMS
		}
		info.NumThreads, _ = p.NumThreadsWithContext(ctx)
		info.CreateTime, _ = p.CreateTimeWithContext(ctx)
		result = append(result, info)
	}
	return result, nil
}
