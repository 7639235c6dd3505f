// Package cgroup allocates short-lived memory accounting groups under a
// cgroup filesystem and reads their counters.
//
// A Group is owned by exactly one tracked run: it is created empty, the run's
// child joins it, and it is removed once the peak counter has been read.
package cgroup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

var logger = log.Named("cgroup")

// DefaultRoots are tried in order; the first existing, writable one wins.
var DefaultRoots = []string{
	"/sys/fs/cgroup",
	"/sys/fs/cgroup/unified",
	"/sys/fs/cgroup/memory",
}

const (
	destroyAttempts = 5
	destroyBackoff  = 10 * time.Millisecond
)

// Layout selects which set of control files a root exposes.
type Layout int

const (
	// LayoutAuto detects the layout from the filesystem type.
	LayoutAuto Layout = iota
	LayoutV2
	LayoutV1
)

func (l Layout) String() string {
	switch l {
	case LayoutV2:
		return "v2"
	case LayoutV1:
		return "v1"
	default:
		return "auto"
	}
}

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LayoutAuto, nil
	case "v2", "2", "unified":
		return LayoutV2, nil
	case "v1", "1", "legacy":
		return LayoutV1, nil
	}
	return LayoutAuto, status.InvalidArgumentErrorf("unknown cgroup layout %q", s)
}

// controlFiles names the files of a group for one layout. An empty name means
// the layout has no such file.
type controlFiles struct {
	procs    string
	peak     string
	current  string
	max      string
	events   string
	pressure string
	kill     string
}

var (
	v2Files = controlFiles{
		procs:    "cgroup.procs",
		peak:     "memory.peak",
		current:  "memory.current",
		max:      "memory.max",
		events:   "memory.events",
		pressure: "memory.pressure",
		kill:     "cgroup.kill",
	}
	v1Files = controlFiles{
		procs:   "cgroup.procs",
		peak:    "memory.max_usage_in_bytes",
		current: "memory.usage_in_bytes",
		max:     "memory.limit_in_bytes",
		events:  "memory.oom_control",
	}
)

func filesFor(l Layout) controlFiles {
	if l == LayoutV1 {
		return v1Files
	}
	return v2Files
}

// Root is a candidate location for new groups.
type Root struct {
	Path   string
	Layout Layout
}

// Roots builds auto-detected roots from paths.
func Roots(paths ...string) []Root {
	roots := make([]Root, 0, len(paths))
	for _, p := range paths {
		roots = append(roots, Root{Path: p})
	}
	return roots
}

// Allocator creates groups under the first usable root.
type Allocator struct {
	roots   []Root
	newName func() string

	mu       sync.Mutex
	prepared map[string]bool
}

func NewAllocator(roots []Root) *Allocator {
	return &Allocator{
		roots:    append([]Root(nil), roots...),
		newName:  lib.NewGroupName,
		prepared: make(map[string]bool),
	}
}

func (a *Allocator) Roots() []Root {
	return append([]Root(nil), a.roots...)
}

// Create makes a new, empty group. It fails with a permission error when at
// least one candidate was rejected for lack of rights, and with a resource
// unavailable error otherwise.
func (a *Allocator) Create() (*Group, error) {
	if len(a.roots) == 0 {
		return nil, status.ResourceUnavailableErrorf("no cgroup roots configured")
	}
	name := a.newName()
	var denied, failed []string
	for _, root := range a.roots {
		if _, err := os.Stat(root.Path); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied = append(denied, fmt.Sprintf("%s: %s", root.Path, err))
			} else {
				logger.Debug().Str("root", root.Path).Msg("cgroup root does not exist")
			}
			continue
		}
		if err := checkWritable(root.Path); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied = append(denied, fmt.Sprintf("%s: not writable", root.Path))
			} else {
				failed = append(failed, fmt.Sprintf("%s: %s", root.Path, err))
			}
			continue
		}
		layout := root.Layout
		if layout == LayoutAuto {
			detected, err := detectLayout(root.Path)
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s: %s", root.Path, err))
				continue
			}
			layout = detected
		}
		a.prepare(root.Path, layout)

		path := filepath.Join(root.Path, name)
		if err := os.Mkdir(path, 0o755); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied = append(denied, fmt.Sprintf("%s: %s", root.Path, err))
			} else {
				failed = append(failed, fmt.Sprintf("%s: %s", root.Path, err))
			}
			continue
		}
		logger.Debug().Str("group", path).Stringer("layout", layout).Msg("created resource group")
		return &Group{
			Name:   name,
			Path:   path,
			Root:   root.Path,
			Layout: layout,
			files:  filesFor(layout),
		}, nil
	}
	if len(denied) > 0 {
		return nil, status.PermissionDeniedErrorf("cannot create cgroup %s (are you root?): %s", name, strings.Join(append(denied, failed...), "; "))
	}
	if len(failed) == 0 {
		return nil, status.ResourceUnavailableErrorf("none of the cgroup roots exist: %s", strings.Join(a.rootPaths(), ", "))
	}
	return nil, status.ResourceUnavailableErrorf("cannot create cgroup %s: %s", name, strings.Join(failed, "; "))
}

func (a *Allocator) rootPaths() []string {
	paths := make([]string, 0, len(a.roots))
	for _, r := range a.roots {
		paths = append(paths, r.Path)
	}
	return paths
}

// prepare enables the memory controller for children of a v2 root. It is
// best effort and runs once per root.
func (a *Allocator) prepare(root string, layout Layout) {
	if layout != LayoutV2 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prepared[root] {
		return
	}
	a.prepared[root] = true
	if err := enableMemoryController(root); err != nil {
		logger.Warn().Err(err).Str("root", root).Msg("could not enable memory controller")
	}
}

func enableMemoryController(root string) error {
	available, err := readControllerSet(filepath.Join(root, "cgroup.controllers"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	enabled, err := readControllerSet(filepath.Join(root, "cgroup.subtree_control"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !available["memory"] || enabled["memory"] {
		return nil
	}
	return writeString(filepath.Join(root, "cgroup.subtree_control"), "+memory")
}

func readControllerSet(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, f := range strings.Fields(string(data)) {
		set[strings.TrimPrefix(f, "+")] = true
	}
	return set, nil
}

// Group is one allocated resource group.
type Group struct {
	Name   string
	Path   string
	Root   string
	Layout Layout

	files controlFiles
}

// ReadPeak returns the group's memory high-water mark in bytes.
func (g *Group) ReadPeak() (uint64, error) {
	return g.readCounter(g.files.peak)
}

// ReadCurrent returns the group's current memory usage in bytes.
func (g *Group) ReadCurrent() (uint64, error) {
	return g.readCounter(g.files.current)
}

// CurrentPath is the file polled by memory traces.
func (g *Group) CurrentPath() string {
	return filepath.Join(g.Path, g.files.current)
}

func (g *Group) readCounter(name string) (uint64, error) {
	if name == "" {
		return 0, status.CounterMissingErrorf("layout %s has no such counter", g.Layout)
	}
	path := filepath.Join(g.Path, name)
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, readError(path, err)
	}
	return parseCounter(path, b)
}

func readError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return status.CounterMissingErrorf("%s: %s", path, err)
	case errors.Is(err, fs.ErrPermission):
		return status.PermissionDeniedErrorf("%s: %s", path, err)
	default:
		return status.ResourceUnavailableErrorf("read %s: %s", path, err)
	}
}

func parseCounter(path string, b []byte) (uint64, error) {
	s := strings.TrimSpace(string(b))
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, status.CorruptedCounterErrorf("%s: %q is not an unsigned integer", path, s)
	}
	return v, nil
}

// ReadOOMKills returns how many processes of the group the OOM killer took.
func (g *Group) ReadOOMKills() (uint64, error) {
	if g.files.events == "" {
		return 0, status.CounterMissingErrorf("layout %s has no memory events", g.Layout)
	}
	path := filepath.Join(g.Path, g.files.events)
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, readError(path, err)
	}
	return readKeyedField(path, b, "oom_kill")
}

// readKeyedField parses "key value" lines and returns the value for key.
func readKeyedField(path string, b []byte, key string) (uint64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || fields[0] != key {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, status.CorruptedCounterErrorf("%s: field %s: %q", path, key, fields[1])
		}
		return v, nil
	}
	return 0, status.CounterMissingErrorf("could not find field %q in %s", key, path)
}

// ReadPressure returns memory pressure stall information (v2 only).
func (g *Group) ReadPressure() (*lib.Pressure, error) {
	if g.files.pressure == "" {
		return nil, status.CounterMissingErrorf("layout %s has no pressure file", g.Layout)
	}
	path := filepath.Join(g.Path, g.files.pressure)
	f, err := os.Open(path)
	if err != nil {
		return nil, readError(path, err)
	}
	defer f.Close()
	return readPSI(f)
}

// SetMemoryMax sets the memory ceiling of the group. Zero leaves it unlimited.
func (g *Group) SetMemoryMax(bytes uint64) error {
	if bytes == 0 {
		return nil
	}
	if err := writeString(filepath.Join(g.Path, g.files.max), strconv.FormatUint(bytes, 10)); err != nil {
		return status.ResourceUnavailableErrorf("set memory ceiling of %s: %s", g.Name, err)
	}
	return nil
}

// AddProcess moves pid (and all its threads) into the group.
func (g *Group) AddProcess(pid int) error {
	if err := writeString(filepath.Join(g.Path, g.files.procs), strconv.Itoa(pid)); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return status.PermissionDeniedErrorf("add pid %d to %s: %s", pid, g.Name, err)
		}
		return status.ResourceUnavailableErrorf("add pid %d to %s: %s", pid, g.Name, err)
	}
	return nil
}

// Procs lists the pids currently in the group.
func (g *Group) Procs() ([]int, error) {
	b, err := os.ReadFile(filepath.Join(g.Path, g.files.procs))
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, f := range strings.Fields(string(b)) {
		pid, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("malformed pid %q in %s", f, g.files.procs)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Destroy removes the group directory. A group that is already gone is not an
// error, so Destroy may be called any number of times. If the group still has
// members they are killed first.
func (g *Group) Destroy() error {
	if g == nil {
		return nil
	}
	var err error
	for attempt := 0; attempt < destroyAttempts; attempt++ {
		err = os.Remove(g.Path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			logger.Debug().Str("group", g.Path).Msg("removed resource group")
			return nil
		}
		if !isBusy(err) {
			break
		}
		if attempt == 0 {
			if kerr := g.Kill(); kerr != nil {
				logger.Warn().Err(kerr).Str("group", g.Path).Msg("failed to kill remaining members")
			}
		}
		time.Sleep(destroyBackoff << attempt)
	}
	logger.Warn().Err(err).Str("group", g.Path).Msg("failed to remove resource group")
	return err
}

// parseProcCgroup finds the cgroup path of the layout's hierarchy in the
// contents of /proc/<pid>/cgroup.
func parseProcCgroup(r io.Reader, layout Layout) (string, error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		parts := strings.SplitN(s.Text(), ":", 3)
		if len(parts) != 3 {
			continue
		}
		switch layout {
		case LayoutV1:
			for _, c := range strings.Split(parts[1], ",") {
				if c == "memory" {
					return parts[2], nil
				}
			}
		default:
			if parts[0] == "0" && parts[1] == "" {
				return parts[2], nil
			}
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", status.NotFoundErrorf("no %s hierarchy in cgroup membership list", layout)
}

// readPSI parses pressure stall information output.
func readPSI(r io.Reader) (*lib.Pressure, error) {
	psi := &lib.Pressure{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("malformed PSI line %q (5 fields expected)", line)
		}
		m := &lib.PressureMetrics{}
		switch fields[0] {
		case "some":
			psi.Some = m
		case "full":
			psi.Full = m
		default:
			return nil, fmt.Errorf("unexpected string %q at field 0", fields[0])
		}
		for _, field := range fields[1:] {
			name, raw, ok := strings.Cut(field, "=")
			if !ok {
				return nil, fmt.Errorf("malformed field %q", field)
			}
			if name == "total" {
				total, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("malformed total field %q", field)
				}
				m.Total = total
				continue
			}
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed avg value field %q", field)
			}
			switch name {
			case "avg10":
				m.Avg10 = value
			case "avg60":
				m.Avg60 = value
			case "avg300":
				m.Avg300 = value
			default:
				return nil, fmt.Errorf("unexpected field name %q", name)
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return psi, nil
}

func writeString(path, val string) error {
	return os.WriteFile(path, []byte(val), 0o644)
}
