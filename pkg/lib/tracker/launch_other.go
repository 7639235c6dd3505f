//go:build !linux

package tracker

import (
	"os"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/cgroup"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

func (t *Tracker) launch(req lib.TrackingRequest, group *cgroup.Group, cfg *RunConfig) (*child, error) {
	return nil, status.UnimplementedErrorf("memory tracking requires Linux cgroups")
}

func maxRSS(ps *os.ProcessState) uint64 {
	return 0
}
