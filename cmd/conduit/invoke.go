package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/conduit/pkg/client"
)

func newInvokeCmd(st *cliState) *cobra.Command {
	var (
		callerID string
		rawArgs  string
		remote   string
	)

	cmd := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Invoke one action and print its result",
		Long:  "Runs the action in-process, or against a running server when --remote is set. A failed invocation prints nothing and exits non-zero with the error code.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments := map[string]any{}
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &arguments); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}

			var transport client.Transport
			if remote != "" {
				transport = client.NewHTTPTransport(remote)
			} else {
				a, err := st.openApp(cmd)
				if err != nil {
					return err
				}
				defer closeApp(cmd, a)
				transport = client.NewLocalTransport(a.Dispatcher)
			}

			var result json.RawMessage
			if err := client.New(transport, callerID).Invoke(cmd.Context(), args[0], arguments, &result); err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&callerID, "caller", "", "Caller ID the action runs as")
	cmd.Flags().StringVar(&rawArgs, "args", "", `Arguments as a JSON object, e.g. '{"threadId":"t1"}'`)
	cmd.Flags().StringVar(&remote, "remote", "", "Base URL of a running conduit server")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}
