package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/config"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/tracker"
)

var logger = log.Named("memtrack")

// killGrace is how long a terminated benchmark gets before SIGKILL.
const killGrace = 2 * time.Second

type runFlags struct {
	trace     string
	timeout   time.Duration
	memoryMax string
	shell     bool
	json      bool
	joinMode  string
	runAs     string
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] -- <path> [args...]",
		Short: "Run a benchmark locally and report its peak memory",
		Long: "Run a benchmark in a fresh cgroup and report its peak memory and how it terminated.\n" +
			"The benchmark's output is forwarded; the report is written to stderr.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("benchmark path is required; use -- to separate CLI flags from the benchmark")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, g.cfg, f, lib.TrackingRequest{Path: args[0], Args: args[1:]})
		},
	}
	cmd.Flags().StringVar(&f.trace, "trace", "", "write a memory trace to this file")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "terminate the benchmark after this long")
	cmd.Flags().StringVar(&f.memoryMax, "memory-max", "", "memory ceiling of the run, e.g. 16GiB")
	cmd.Flags().BoolVar(&f.shell, "shell", false, "run through /bin/sh -c")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the report as JSON")
	cmd.Flags().StringVar(&f.joinMode, "join-mode", "", "how the benchmark joins its cgroup (auto, cgroupfd, parent)")
	cmd.Flags().StringVar(&f.runAs, "run-as", "", "run the benchmark as USER[:GROUP] or as the sudo caller (sudo)")
	return cmd
}

func runLocal(cmd *cobra.Command, cfg *config.Config, f *runFlags, req lib.TrackingRequest) error {
	if f.shell {
		cfg.Launch.Shell = true
	}
	if f.joinMode != "" {
		cfg.Cgroup.JoinMode = f.joinMode
	}
	if f.memoryMax != "" {
		cfg.Cgroup.MemoryMax = f.memoryMax
	}
	if f.runAs != "" {
		cfg.Launch.RunAs = f.runAs
	}
	opts, err := cfg.TrackerOptions(os.Getenv)
	if err != nil {
		return err
	}
	t := tracker.New(opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	runOpts := []tracker.RunOption{
		tracker.WithRunID(lib.NewID()),
		tracker.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}
	if f.trace != "" {
		tf, err := os.Create(f.trace)
		if err != nil {
			return err
		}
		defer tf.Close()
		runOpts = append(runOpts, tracker.WithTrace(tf))
	}

	finished := make(chan struct{})
	launched := make(chan int, 1)
	runOpts = append(runOpts, tracker.WithLaunchHook(func(pid int) { launched <- pid }))
	go terminateOnDone(ctx, launched, finished)

	usage, err := t.Run(ctx, req, runOpts...)
	close(finished)
	if usage == nil {
		return err
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) && usage.Result.Kind == lib.OutcomeSignaled
	out := cmd.ErrOrStderr()
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(usage); err != nil {
			return err
		}
	} else {
		printUsage(out, req, usage, timedOut)
	}
	if err != nil {
		return err
	}
	if timedOut {
		return fmt.Errorf("benchmark timed out after %s", f.timeout)
	}
	if !usage.Result.Success() {
		return fmt.Errorf("benchmark %s", usage.Result)
	}
	return nil
}

// terminateOnDone signals the benchmark's process group once ctx is done,
// escalating to SIGKILL after killGrace.
func terminateOnDone(ctx context.Context, launched <-chan int, finished <-chan struct{}) {
	var pid int
	select {
	case pid = <-launched:
	case <-finished:
		return
	}
	select {
	case <-ctx.Done():
	case <-finished:
		return
	}
	logger.Info().Int("pid", pid).Msg("terminating benchmark")
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	timer := time.NewTimer(killGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
		logger.Warn().Int("pid", pid).Msg("benchmark ignored SIGTERM, killing")
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	case <-finished:
	}
}
