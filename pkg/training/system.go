package training

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/multierr"
)

// SystemInfo describes the machine a CPU training run will use.
type SystemInfo struct {
	OS            string
	Platform      string
	CPUModel      string
	LogicalCores  int
	PhysicalCores int
	MemoryTotal   uint64
	MemoryFree    uint64
}

// Rows returns the info as label/value pairs for display.
func (s SystemInfo) Rows() [][2]string {
	return [][2]string{
		{"OS", s.OS},
		{"Platform", s.Platform},
		{"CPU", s.CPUModel},
		{"CPU Cores", fmt.Sprintf("%d logical, %d physical", s.LogicalCores, s.PhysicalCores)},
		{"Memory", fmt.Sprintf("%s total, %s available", formatBytes(s.MemoryTotal), formatBytes(s.MemoryFree))},
		{"Training Device", "CPU"},
	}
}

// CollectSystemInfo gathers host details. Partial results are returned
// alongside any errors.
func CollectSystemInfo(ctx context.Context) (SystemInfo, error) {
	info := SystemInfo{
		OS:           runtime.GOOS + "/" + runtime.GOARCH,
		LogicalCores: runtime.NumCPU(),
	}
	var errs error

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.LogicalCores = n
	} else {
		errs = multierr.Append(errs, err)
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.PhysicalCores = n
	} else {
		errs = multierr.Append(errs, err)
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	} else if err != nil {
		errs = multierr.Append(errs, err)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryFree = vm.Available
	} else {
		errs = multierr.Append(errs, err)
	}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
	} else {
		errs = multierr.Append(errs, err)
	}
	return info, errs
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Check is the outcome of a quick environment test.
type Check struct {
	Binary     string // resolved trainer path, empty when missing
	Version    string
	DataConfig string
	DataFound  bool
	Classes    int
	Missing    []string // dataset split directories that do not exist
	System     SystemInfo
	Problems   []error
}

// OK reports whether training can start.
func (c Check) OK() bool {
	return len(c.Problems) == 0
}

// RunCheck verifies that the trainer is installed and the dataset config is
// readable. Host info failures are not problems.
func RunCheck(ctx context.Context, r *Runner, dataConfig string) Check {
	c := Check{DataConfig: dataConfig}

	if path, err := r.LookPath(); err != nil {
		c.Problems = append(c.Problems, err)
	} else {
		c.Binary = path
		if v, err := r.Version(ctx); err == nil {
			c.Version = v
		}
	}

	if _, err := os.Stat(dataConfig); err != nil {
		c.Problems = append(c.Problems, fmt.Errorf("training: data config %s: %w", dataConfig, err))
	} else {
		c.DataFound = true
		dc, err := LoadDataConfig(dataConfig)
		if dc != nil {
			c.Classes = len(dc.Names)
			c.Missing = dc.MissingSplits()
		}
		if err != nil {
			c.Problems = append(c.Problems, err)
		}
	}

	c.System, _ = CollectSystemInfo(ctx)
	return c
}
