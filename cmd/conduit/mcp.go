package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/conduit/pkg/mcp"
)

func newMCPCmd(st *cliState) *cobra.Command {
	var callerID string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the action catalog as MCP tools over stdio",
		Long:  "Every tool call is dispatched on behalf of --caller. Logs go to stderr; stdout carries the protocol.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := st.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			srv, err := mcp.NewConduitServer(mcp.ConduitServerDeps{
				Invoker:  a.Dispatcher,
				Catalog:  a.Schemas,
				Logs:     a.Store,
				CallerID: callerID,
				Version:  version,
				Logger:   a.Logger,
			})
			if err != nil {
				return err
			}
			return srv.ServeIO(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&callerID, "caller", "", "Caller ID every tool call runs as")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}
