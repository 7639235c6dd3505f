package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
)

func newWatchCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <run_id>",
		Short: "Stream the state transitions of a run from the beginning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			conn, client, err := dial(g.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			stream, err := client.Watch(ctx, &apiv1.WatchRequest{RunID: args[0]})
			if err != nil {
				return err
			}
			for {
				ev, err := stream.Recv()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				printEvent(cmd.OutOrStdout(), ev)
			}
		},
	}
	return cmd
}

func printEvent(w io.Writer, ev *apiv1.RunEvent) {
	line := fmt.Sprintf("%s  %s", ev.Time.Format("15:04:05.000"), ev.State)
	if ev.Error != "" {
		line += "  error: " + ev.Error
	}
	fmt.Fprintln(w, line)
}
