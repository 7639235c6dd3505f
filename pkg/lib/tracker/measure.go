package tracker

import (
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/cgroup"
)

// Measure subtracts the pre-launch baseline from the post-run peak. A peak
// below the baseline (e.g. a counter reset) yields zero.
func Measure(peak, baseline uint64) uint64 {
	if peak < baseline {
		return 0
	}
	return peak - baseline
}

// readBaseline snapshots the group's peak counter right before the child is
// created. A group that cannot report it contributes no baseline.
func readBaseline(group *cgroup.Group) uint64 {
	v, err := group.ReadPeak()
	if err != nil {
		logger.Debug().Err(err).Str("group", group.Name).Msg("no baseline peak")
		return 0
	}
	return v
}
