// Package resources gates heavy pipeline stages on free CPU, memory and disk.
package resources

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"splitmix/config"
)

// Gate is satisfied by Checker; stage components accept a nil Gate.
type Gate interface {
	Check(path string) error
}

type Checker struct {
	idleCPU  float64
	freeMem  uint64
	freeDisk uint64
	sample   time.Duration
	logger   *log.Logger

	// probes are swapped in tests
	cpuPercent func(time.Duration) (float64, error)
	memFree    func() (uint64, error)
	diskFree   func(path string) (uint64, error)
}

func NewChecker(cfg *config.Config, logger *log.Logger) *Checker {
	return &Checker{
		idleCPU:    cfg.ThrottleCPU,
		freeMem:    uint64(max(cfg.ThrottleFreeMem, 0)),
		freeDisk:   uint64(max(cfg.ThrottleFreeDisk, 0)),
		sample:     500 * time.Millisecond,
		logger:     logger,
		cpuPercent: cpuPercent,
		memFree:    memFree,
		diskFree:   diskFree,
	}
}

// Check verifies there is enough headroom to start work writing under path.
// Probe failures are logged and do not block.
func (c *Checker) Check(path string) error {
	if c.idleCPU > 0 {
		used, err := c.cpuPercent(c.sample)
		if err != nil {
			c.logger.Warn("could not get CPU usage", "err", err)
		} else if used > 100.0-c.idleCPU {
			return fmt.Errorf("not enough idle CPU: usage %.2f%%, idle threshold %.2f%%", used, c.idleCPU)
		}
	}

	if c.freeMem > 0 {
		avail, err := c.memFree()
		if err != nil {
			c.logger.Warn("could not get memory usage", "err", err)
		} else if avail < c.freeMem {
			return fmt.Errorf("not enough free memory: available %s, required %s",
				humanize.Bytes(avail), humanize.Bytes(c.freeMem))
		}
	}

	if c.freeDisk > 0 && path != "" {
		free, err := c.diskFree(path)
		if err != nil {
			c.logger.Warn("could not get disk usage", "path", path, "err", err)
		} else if free < c.freeDisk {
			return fmt.Errorf("not enough free disk space in %s: available %s, required %s",
				path, humanize.Bytes(free), humanize.Bytes(c.freeDisk))
		}
	}
	return nil
}

func cpuPercent(sample time.Duration) (float64, error) {
	p, err := cpu.Percent(sample, false)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("no CPU samples")
	}
	return p[0], nil
}

func memFree() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func diskFree(path string) (uint64, error) {
	d, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return d.Free, nil
}
