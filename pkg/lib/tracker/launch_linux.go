package tracker

import (
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/cgroup"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

const outputWaitDelay = time.Second

// execErrnos are the failures of a launch that say nothing about the group:
// the program image could not be loaded, or the fork itself ran out of
// resources.
var execErrnos = []syscall.Errno{
	syscall.ENOENT,
	syscall.EACCES,
	syscall.ENOEXEC,
	syscall.ENOTDIR,
	syscall.E2BIG,
	syscall.ETXTBSY,
	syscall.ELOOP,
	syscall.EISDIR,
	syscall.ENAMETOOLONG,
	syscall.EPERM,
	syscall.ENOMEM,
	syscall.EAGAIN,
}

// cloneUnsupportedErrnos mean the kernel cannot clone into this group, so the
// parent join may still work.
var cloneUnsupportedErrnos = []syscall.Errno{
	syscall.ENOSYS,
	syscall.EOPNOTSUPP,
	syscall.EINVAL,
}

func errnoIn(err error, set []syscall.Errno) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && slices.Contains(set, errno)
}

// startFailure classifies an error from exec.Cmd.Start. Exec-stage failures
// become a startError; anything else is left for the caller to map.
func startFailure(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, exec.ErrDot) || errnoIn(err, execErrnos) {
		return &startError{err: err}
	}
	return err
}

func (t *Tracker) command(req lib.TrackingRequest, cfg *RunConfig) *exec.Cmd {
	var cmd *exec.Cmd
	if t.opts.Shell {
		line := strings.Join(append([]string{req.Path}, req.Args...), " ")
		cmd = exec.Command("/bin/sh", "-c", line)
	} else {
		cmd = exec.Command(req.Path, req.Args...)
	}
	cmd.Stdin = cfg.Stdin
	cmd.Stdout = cfg.Stdout
	cmd.Stderr = cfg.Stderr
	// A descendant that outlives the child can hold the output pipes open.
	cmd.WaitDelay = outputWaitDelay
	if len(t.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), t.opts.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Own process group so callers can signal the benchmark and everything
		// it spawns as a unit.
		Setpgid:    true,
		Credential: t.opts.Credential,
	}
	return cmd
}

// launch starts the child so that it is a member of group before its program
// image is loaded.
func (t *Tracker) launch(req lib.TrackingRequest, group *cgroup.Group, cfg *RunConfig) (*child, error) {
	mode := t.opts.JoinMode
	if group.Layout == cgroup.LayoutV1 && mode != JoinParent {
		if mode == JoinCgroupFD {
			return nil, status.FailedPreconditionErrorf("cgroupfd join requires a v2 hierarchy, %s is %s", group.Root, group.Layout)
		}
		mode = JoinParent
	}

	var (
		c   *child
		err error
	)
	switch mode {
	case JoinParent:
		c, err = t.startInherited(req, group, cfg)
	default:
		c, err = t.startInto(req, group, cfg)
		if err != nil && mode == JoinAuto && errnoIn(err, cloneUnsupportedErrnos) {
			logger.Info().Err(err).Msg("clone into cgroup unsupported, joining through the parent")
			c, err = t.startInherited(req, group, cfg)
		}
	}
	if err != nil {
		var se *startError
		if errors.As(err, &se) {
			return nil, status.LaunchFailedErrorf("%s: %s", req.Path, se.err)
		}
		if status.Code(err) == codes.Unknown {
			return nil, status.ResourceUnavailableErrorf("start %s in %s: %s", req.Path, group.Path, err)
		}
		return nil, err
	}
	return c, nil
}

// startInto creates the child directly inside the group.
func (t *Tracker) startInto(req lib.TrackingRequest, group *cgroup.Group, cfg *RunConfig) (*child, error) {
	dir, err := os.Open(group.Path)
	if err != nil {
		return nil, status.ResourceUnavailableErrorf("open %s: %s", group.Path, err)
	}
	defer dir.Close()

	cmd := t.command(req, cfg)
	cmd.SysProcAttr.UseCgroupFD = true
	cmd.SysProcAttr.CgroupFD = int(dir.Fd())

	baseline := readBaseline(group)
	if err := cmd.Start(); err != nil {
		return nil, startFailure(err)
	}
	return &child{cmd: cmd, baseline: baseline}, nil
}

// startInherited moves the harness into the group, forks and moves the harness
// back. The child stays behind as the group's only member.
func (t *Tracker) startInherited(req lib.TrackingRequest, group *cgroup.Group, cfg *RunConfig) (c *child, err error) {
	restore, err := group.JoinSelf()
	if err != nil {
		if status.Code(err) == codes.Unknown {
			err = status.ResourceUnavailableErrorf("join %s: %s", group.Path, err)
		}
		return nil, err
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			logger.Error().Err(rerr).Msg("cannot leave benchmark cgroup")
			if err == nil {
				err = status.InternalErrorf("leave %s: %s", group.Path, rerr)
				// The child is already running and would otherwise never be reaped.
				_ = c.cmd.Process.Kill()
				_ = c.cmd.Wait()
				c = nil
			}
		}
	}()

	cmd := t.command(req, cfg)
	baseline := readBaseline(group)
	if err := cmd.Start(); err != nil {
		return nil, startFailure(err)
	}
	return &child{cmd: cmd, baseline: baseline}, nil
}

// maxRSS reports ru_maxrss, which Linux keeps in kilobytes.
func maxRSS(ps *os.ProcessState) uint64 {
	ru, ok := ps.SysUsage().(*syscall.Rusage)
	if !ok || ru.Maxrss <= 0 {
		return 0
	}
	return uint64(ru.Maxrss) << 10
}
