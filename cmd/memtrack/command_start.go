package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/config"
)

func newStartCmd(g *globals) *cobra.Command {
	var memoryMax string
	cmd := &cobra.Command{
		Use:   "start [flags] -- <path> [args...]",
		Short: "Queue a tracked run on the daemon",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("benchmark path is required; use -- to separate CLI flags from the benchmark")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := config.ParseSize(memoryMax)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			conn, client, err := dial(g.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			resp, err := client.Start(ctx, &apiv1.StartRequest{
				Request:        &apiv1.TrackingRequest{Path: args[0], Args: args[1:]},
				MemoryMaxBytes: limit,
			})
			if err != nil {
				return err
			}
			// Only the run id, so scripts can capture it.
			fmt.Fprintln(cmd.OutOrStdout(), resp.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&memoryMax, "memory-max", "", "memory ceiling of the run, e.g. 16GiB")
	return cmd
}
