package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/conduit/internal/retention"
)

func newPurgeCmd(st *cliState) *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete execution log entries older than the retention window",
		Long:  "Purges once and exits. With --daemon or an explicit --schedule it keeps purging on the schedule until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := st.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			job, err := retention.NewJob(a.Store, st.cfg.Retention.Days, st.cfg.Retention.Schedule, a.Logger)
			if err != nil {
				return err
			}

			if !daemon && !cmd.Flags().Changed("schedule") {
				n, err := job.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := job.Start(ctx); err != nil {
				return err
			}
			a.Logger.Info("retention job running", "schedule", st.cfg.Retention.Schedule, "days", st.cfg.Retention.Days)
			<-ctx.Done()
			return job.Stop()
		},
	}

	f := cmd.Flags()
	f.Int("days", retention.DefaultDays, "Keep entries newer than this many days")
	f.String("schedule", retention.DefaultSchedule, "Cron schedule; setting it runs as a daemon")
	f.BoolVar(&daemon, "daemon", false, "Keep running and purge on the schedule")
	bindFlag(st.v, "retention.days", f, "days")
	bindFlag(st.v, "retention.schedule", f, "schedule")
	return cmd
}
