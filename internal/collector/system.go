package collector

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

func cpuData(ctx context.Context) (map[string]any, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, err
	}
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	data := map[string]any{"percent": percents}
	if len(times) > 0 {
		data["times"] = times[0]
	}
	return data, nil
}

func cpuModel(ctx context.Context) (string, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", errors.New("no cpu info")
	}
	return infos[0].ModelName, nil
}

func virtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func swapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

func network(ctx context.Context) ([]psnet.IOCountersStat, error) {
	return psnet.IOCountersWithContext(ctx, true)
}

func partitionsMetadata(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

func partitionsUsage(ctx context.Context) (map[string]*disk.UsageStat, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	usage := make(map[string]*disk.UsageStat, len(partitions))
	for _, p := range partitions {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			// unreadable mounts (permissions, stale NFS) are skipped
			continue
		}
		usage[p.Mountpoint] = u
	}
	return usage, nil
}

func diskIO(ctx context.Context) (map[string]disk.IOCountersStat, error) {
	return disk.IOCountersWithContext(ctx)
}
