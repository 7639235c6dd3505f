package main

import (
	"github.com/spf13/cobra"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/config"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
)

// globals are the settings shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "memtrack",
		Short:         "Measure the peak memory of benchmark runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.logLevel != "" {
				cfg.Log.Level = g.logLevel
			}
			if err := log.ConfigureOutput(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.JSON); err != nil {
				return err
			}
			g.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newStartCmd(g))
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newStopCmd(g))
	root.AddCommand(newWatchCmd(g))

	return root
}
