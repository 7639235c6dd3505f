//go:build linux

package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

func checkWritable(path string) error {
	if err := unix.Access(path, unix.W_OK); err != nil {
		return &os.PathError{Op: "access", Path: path, Err: err}
	}
	return nil
}

func detectLayout(path string) (Layout, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return LayoutAuto, &os.PathError{Op: "statfs", Path: path, Err: err}
	}
	switch int64(st.Type) {
	case unix.CGROUP2_SUPER_MAGIC:
		return LayoutV2, nil
	case unix.CGROUP_SUPER_MAGIC:
		return LayoutV1, nil
	}
	return LayoutAuto, fmt.Errorf("not a cgroup filesystem (magic %#x)", st.Type)
}

func isBusy(err error) bool {
	return errors.Is(err, unix.EBUSY)
}

// Kill terminates every member of the group. On v2 this uses cgroup.kill,
// which also catches processes forked while the kill is in flight.
func (g *Group) Kill() error {
	if g.files.kill != "" {
		// cgroup.kill needs kernel 5.14; fall back to signalling pids.
		killPath := filepath.Join(g.Path, g.files.kill)
		if _, err := os.Stat(killPath); err == nil {
			return writeString(killPath, "1")
		}
	}
	pids, err := g.Procs()
	if err != nil {
		return err
	}
	var lastErr error
	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			lastErr = err
		}
	}
	return lastErr
}

// JoinSelf moves the calling process into the group so that children forked
// afterwards are born inside it. The returned function moves the process back
// to the cgroup it was in before.
func (g *Group) JoinSelf() (restore func() error, err error) {
	f, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return nil, err
	}
	rel, err := parseProcCgroup(f, g.Layout)
	f.Close()
	if err != nil {
		return nil, err
	}
	original := filepath.Join(g.Root, rel)
	pid := os.Getpid()
	if err := g.AddProcess(pid); err != nil {
		return nil, err
	}
	return func() error {
		return writeString(filepath.Join(original, g.files.procs), strconv.Itoa(pid))
	}, nil
}
