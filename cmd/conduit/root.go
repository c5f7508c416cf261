package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/conduit/internal/app"
)

const shutdownTimeout = 10 * time.Second

// cliState carries the resolved configuration to subcommands.
type cliState struct {
	v       *viper.Viper
	cfgFile string
	cfg     Config
}

func newRootCmd() *cobra.Command {
	st := &cliState{v: viper.New()}

	root := &cobra.Command{
		Use:          "conduit",
		Short:        "Function-calling orchestration for a messaging assistant",
		Long:         "conduit validates, authorizes and dispatches assistant actions under a deadline, and keeps an execution log of every invocation.",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(st.v, st.cfgFile)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&st.cfgFile, "config", "", "config file (default ~/.conduit/settings.yaml)")
	pf.String("db-path", "", "execution log database file, or :memory:")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	pf.String("workspace", "", "workspace YAML file (default: built-in sample)")
	bindFlag(st.v, "db_path", pf, "db-path")
	bindFlag(st.v, "log_level", pf, "log-level")
	bindFlag(st.v, "log_format", pf, "log-format")
	bindFlag(st.v, "workspace", pf, "workspace")

	root.AddCommand(
		newVersionCmd(),
		newActionsCmd(),
		newServeCmd(st),
		newMCPCmd(st),
		newInvokeCmd(st),
		newLogsCmd(st),
		newPurgeCmd(st),
	)
	return root
}

// openApp wires a process for one command. Logs go to the command's stderr.
func (st *cliState) openApp(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), st.cfg.appConfig(cmd.ErrOrStderr()))
}

// closeApp drains the execution log and releases the store.
func closeApp(cmd *cobra.Command, a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		cmd.PrintErrln("shutdown:", err)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
