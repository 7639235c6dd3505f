//go:build !linux

package cgroup

import "github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"

func checkWritable(path string) error {
	return nil
}

func detectLayout(path string) (Layout, error) {
	return LayoutAuto, status.UnimplementedErrorf("cgroups are only available on linux")
}

func isBusy(err error) bool {
	return false
}

func (g *Group) Kill() error {
	return nil
}

func (g *Group) JoinSelf() (func() error, error) {
	return nil, status.UnimplementedErrorf("cgroups are only available on linux")
}
