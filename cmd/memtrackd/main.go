package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/config"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/metrics"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/runner"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/tracker"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "memtrackd",
		Short:         "Serve memory-tracked benchmark runs over mTLS gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("memtrackd failed")
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.JSON); err != nil {
		return err
	}
	opts, err := cfg.TrackerOptions(os.Getenv)
	if err != nil {
		return err
	}
	tail, err := cfg.OutputTailBytes()
	if err != nil {
		return err
	}
	tlsConfig, err := cfg.TLS.ServerTLS()
	if err != nil {
		return err
	}

	t := tracker.New(opts)
	metrics.RegisterGuardWaiters(t.Guard().Waiting)
	svc := NewTrackerServiceServer(runner.NewRunner(t, runner.WithOutputTail(tail)))

	srv, err := Listen(cfg.Server.Address, tlsConfig, svc)
	if err != nil {
		return err
	}
	if cfg.Server.MonitoringAddress != "" {
		mon := startMonitoring(cfg.Server.MonitoringAddress)
		defer mon.Close()
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		srv.Stop()
	}()
	logger.Info().Stringer("addr", srv.Addr()).Msg("server (TLS) listening")
	return srv.Serve()
}
