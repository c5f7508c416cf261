package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/conduit/internal/retention"
)

func newServeCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP invocation endpoint",
		Long:  "Serves POST /v1/invoke, the action catalog, execution log queries and streams, health and metrics. The retention job runs in the background unless retention.enabled is false.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := st.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			if st.cfg.Retention.Enabled {
				job, err := retention.NewJob(a.Store, st.cfg.Retention.Days, st.cfg.Retention.Schedule, a.Logger)
				if err != nil {
					return err
				}
				if err := job.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = job.Stop() }()
			}

			a.Logger.Info("conduit listening",
				"addr", st.cfg.ListenAddr,
				"db_path", st.cfg.DBPath,
				"version", version,
			)
			return a.Server().ListenAndServe(ctx, st.cfg.ListenAddr)
		},
	}

	cmd.Flags().String("listen-addr", ":4100", "HTTP listen address")
	bindFlag(st.v, "listen_addr", cmd.Flags(), "listen-addr")
	return cmd
}
