// Package sysinfo reports host resource usage for the operational
// /system/version endpoint. It has no bearing on reputation scoring; it
// exists purely so an operator can see the process is not starved of
// memory or CPU without reaching for an external APM agent.
package sysinfo

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time host resource reading.
type Snapshot struct {
	CPUPercent    float64
	MemUsedBytes  uint64
	MemTotalBytes uint64
	MemPercent    float64
}

// Read samples CPU and memory usage. CPU sampling blocks for sampleWindow
// (pass 0 for an instantaneous, less accurate reading against the last
// sample).
func Read(sampleWindow time.Duration) (Snapshot, error) {
	var snap Snapshot

	percents, err := cpu.Percent(sampleWindow, false)
	if err != nil {
		return Snapshot{}, err
	}
	if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, err
	}
	snap.MemUsedBytes = vm.Used
	snap.MemTotalBytes = vm.Total
	snap.MemPercent = vm.UsedPercent

	return snap, nil
}
