package collector

import (
	"context"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"vitals/internal/models"
)

// Source reads one snapshot of host metrics. Implementations fill everything
// except ID, TS and the net rate fields, which belong to the sampler.
type Source interface {
	Collect(ctx context.Context) (models.Sample, error)
}

type SystemSource struct {
	diskPath string
	topLimit int
}

func NewSystemSource(diskPath string, topLimit int) *SystemSource {
	if diskPath == "" {
		diskPath = "/"
	}
	if topLimit <= 0 {
		topLimit = 5
	}
	return &SystemSource{diskPath: diskPath, topLimit: topLimit}
}

func (s *SystemSource) Collect(ctx context.Context) (models.Sample, error) {
	var sample models.Sample

	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return sample, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pcts) > 0 {
		sample.CPUPercent = clampPercent(pcts[0])
	}
	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return sample, fmt.Errorf("cpu count: %w", err)
	}
	sample.CPUCount = count

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("virtual memory: %w", err)
	}
	sample.RAMTotalBytes = int64(vm.Total)
	sample.RAMUsedBytes = int64(vm.Used)
	sample.RAMPercent = clampPercent(vm.UsedPercent)

	du, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return sample, fmt.Errorf("disk usage %s: %w", s.diskPath, err)
	}
	sample.DiskTotalBytes = int64(du.Total)
	sample.DiskUsedBytes = int64(du.Used)
	sample.DiskPercent = clampPercent(du.UsedPercent)

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return sample, fmt.Errorf("net io counters: %w", err)
	}
	if len(counters) > 0 {
		sample.NetTxTotal = int64(counters[0].BytesSent)
		sample.NetRxTotal = int64(counters[0].BytesRecv)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("list processes: %w", err)
	}
	sample.ProcessCount = len(procs)
	sample.TopProcesses = rankProcesses(collectProcesses(ctx, procs), s.topLimit)
	return sample, nil
}

// collectProcesses skips processes that vanish or deny access mid-enumeration.
func collectProcesses(ctx context.Context, procs []*process.Process) []models.ProcessInfo {
	out := make([]models.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		cpuPct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, models.ProcessInfo{
			PID:           p.Pid,
			Name:          name,
			CPUPercent:    cpuPct,
			MemoryPercent: float64(memPct),
		})
	}
	return out
}

func rankProcesses(list []models.ProcessInfo, limit int) []models.ProcessInfo {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CPUPercent > list[j].CPUPercent })
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]models.ProcessInfo{}, list...)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
