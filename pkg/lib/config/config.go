// Package config loads harness settings from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/cgroup"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/tracker"
)

const (
	EnvAddress           = "MEMTRACK_ADDRESS"
	EnvMonitoringAddress = "MEMTRACK_MONITORING_ADDRESS"
	EnvCgroupRoots       = "MEMTRACK_CGROUP_ROOTS"
	EnvLogLevel          = "MEMTRACK_LOG_LEVEL"
	EnvTLSKey            = "MEMTRACK_TLS_KEY"
	EnvTLSCert           = "MEMTRACK_TLS_CERT"
	EnvCATLSCert         = "MEMTRACK_CA_TLS_CERT"

	DefaultAddress    = "localhost:50051"
	DefaultOutputTail = "64KiB"
)

type Config struct {
	Cgroup CgroupConfig `yaml:"cgroup"`
	Launch LaunchConfig `yaml:"launch"`
	Trace  TraceConfig  `yaml:"trace"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	TLS    TLSConfig    `yaml:"tls"`
}

type CgroupConfig struct {
	// Roots are candidate cgroup roots, tried in order.
	Roots []string `yaml:"roots"`
	// Layout is "auto", "v2" or "v1".
	Layout string `yaml:"layout"`
	// JoinMode is "auto", "cgroupfd" or "parent".
	JoinMode string `yaml:"join_mode"`
	// MemoryMax is a size such as "8GiB"; empty means no ceiling.
	MemoryMax   string `yaml:"memory_max"`
	RequireRoot bool   `yaml:"require_root"`
}

type LaunchConfig struct {
	// Sentinel is the exit status reserved for exec failures. Zero reserves
	// 127 in shell mode only, -1 disables it.
	Sentinel int  `yaml:"sentinel"`
	Shell    bool `yaml:"shell"`
	// RunAs is USER[:GROUP] or "sudo".
	RunAs string   `yaml:"run_as"`
	Env   []string `yaml:"env"`
}

type TraceConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Address           string `yaml:"address"`
	MonitoringAddress string `yaml:"monitoring_address"`
	OutputTail        string `yaml:"output_tail"`
}

// TLSConfig holds PEM-encoded material.
type TLSConfig struct {
	Key  string `yaml:"key"`
	Cert string `yaml:"cert"`
	CA   string `yaml:"ca"`
}

func Default() *Config {
	return &Config{
		Cgroup: CgroupConfig{
			Roots:       append([]string(nil), cgroup.DefaultRoots...),
			Layout:      cgroup.LayoutAuto.String(),
			JoinMode:    tracker.JoinAuto.String(),
			RequireRoot: true,
		},
		Trace: TraceConfig{
			SampleInterval: tracker.DefaultSampleInterval,
			PollInterval:   tracker.DefaultPollInterval,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Address:    DefaultAddress,
			OutputTail: DefaultOutputTail,
		},
	}
}

// Load reads path (if non-empty) over the defaults and applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, status.InvalidArgumentErrorf("read config: %s", err)
		}
		if err := cfg.Decode(bytes.NewReader(b)); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Decode overlays the YAML document in r. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return status.InvalidArgumentErrorf("parse config: %s", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(EnvAddress, &c.Server.Address)
	set(EnvMonitoringAddress, &c.Server.MonitoringAddress)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvTLSKey, &c.TLS.Key)
	set(EnvTLSCert, &c.TLS.Cert)
	set(EnvCATLSCert, &c.TLS.CA)
	if v, ok := lookup(EnvCgroupRoots); ok && strings.TrimSpace(v) != "" {
		var roots []string
		for _, r := range strings.Split(v, ":") {
			if r = strings.TrimSpace(r); r != "" {
				roots = append(roots, r)
			}
		}
		c.Cgroup.Roots = roots
	}
}

// MemoryMaxBytes parses the configured ceiling.
func (c *Config) MemoryMaxBytes() (uint64, error) {
	return ParseSize(c.Cgroup.MemoryMax)
}

// OutputTailBytes parses the per-run output tail size.
func (c *Config) OutputTailBytes() (int64, error) {
	n, err := ParseSize(c.Server.OutputTail)
	return int64(n), err
}

// ParseSize accepts binary sizes ("512MiB", "8g") and plain byte counts. An
// empty string is zero.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil || n < 0 {
		return 0, status.InvalidArgumentErrorf("invalid size %q", s)
	}
	return uint64(n), nil
}

// TrackerOptions builds the tracker configuration. getenv resolves the
// SUDO_* variables for RunAs "sudo".
func (c *Config) TrackerOptions(getenv func(string) string) (tracker.Options, error) {
	opts := tracker.DefaultOptions()

	layout, err := cgroup.ParseLayout(c.Cgroup.Layout)
	if err != nil {
		return opts, err
	}
	opts.Roots = nil
	for _, r := range cgroup.Roots(c.Cgroup.Roots...) {
		r.Layout = layout
		opts.Roots = append(opts.Roots, r)
	}
	if opts.JoinMode, err = tracker.ParseJoinMode(c.Cgroup.JoinMode); err != nil {
		return opts, err
	}
	if opts.MemoryMax, err = c.MemoryMaxBytes(); err != nil {
		return opts, err
	}
	opts.RequireRoot = c.Cgroup.RequireRoot
	opts.Sentinel = c.Launch.Sentinel
	opts.Shell = c.Launch.Shell
	opts.Env = append([]string(nil), c.Launch.Env...)
	if opts.Credential, err = tracker.ResolveCredential(c.Launch.RunAs, getenv); err != nil {
		return opts, err
	}
	opts.SampleInterval = c.Trace.SampleInterval
	opts.PollInterval = c.Trace.PollInterval
	return opts, nil
}
