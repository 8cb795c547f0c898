package facade

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceGuard reports an error describing which resource is
// exhausted, or nil if there is enough headroom to start a new
// tracking job. Grounded on cxumol-FFwebAPI/ffmpeg.Runner's
// checkResources, trimmed to the two signals that matter for a CPU-
// bound detection/tracking loop (disk headroom is the record driver's
// concern, not tracking's, since Track never downloads anything).
type ResourceGuard func() error

// NewCPUGuard returns a ResourceGuard that rejects a new tracking job
// when current CPU usage leaves less than (100-maxUsagePercent) percent
// idle, mirroring the teacher's ThrottleCPU knob.
func NewCPUGuard(maxUsagePercent float64) ResourceGuard {
	return func() error {
		percents, err := cpu.Percent(200*time.Millisecond, false)
		if err != nil || len(percents) == 0 {
			// Matches the teacher's own behavior: a sampling failure does
			// not block the job; it is not reported to the caller.
			return nil
		}
		if percents[0] > maxUsagePercent {
			return fmt.Errorf("CPU usage %.1f%% exceeds throttle threshold %.1f%%", percents[0], maxUsagePercent)
		}
		vm, err := mem.VirtualMemory()
		if err == nil && vm.UsedPercent > 95.0 {
			return fmt.Errorf("memory usage %.1f%% leaves too little headroom to start tracking", vm.UsedPercent)
		}
		return nil
	}
}
