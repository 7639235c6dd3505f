package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
)

func newStatusCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run_id>",
		Short: "Get the status of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			conn, client, err := dial(g.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			resp, err := client.Status(ctx, &apiv1.StatusRequest{RunID: runID})
			if err != nil {
				if grpcCode(err) == codes.PermissionDenied {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Forbidden. Only the client that started the run can get its status.")
					return nil
				}
				return err
			}
			printStatusTable(cmd.OutOrStdout(), runID, resp.Status, resp.Request)
			return nil
		},
	}
	return cmd
}
