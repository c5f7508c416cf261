package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/pkg/schema"
)

func newLogsCmd(st *cliState) *cobra.Command {
	var (
		filter  store.LogFilter
		status  string
		since   string
		until   string
		program string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the execution log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Status = schema.OutcomeStatus(status)
			switch filter.Status {
			case "", schema.OutcomeSuccess, schema.OutcomeError, schema.OutcomeTimeout:
			default:
				return fmt.Errorf("--status must be success, error or timeout")
			}
			var err error
			if filter.Since, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if filter.Until, err = parseTimeFlag("until", until); err != nil {
				return err
			}
			if filter.Limit < 0 || filter.Limit > store.MaxQueryLimit {
				return fmt.Errorf("--limit must be between 1 and %d", store.MaxQueryLimit)
			}

			jq := expressions.NewGoJQEngine()
			if program != "" {
				if err := jq.Compile(program); err != nil {
					return err
				}
			}

			a, err := st.openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			entries, err := a.Store.QueryEntries(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []*store.ExecutionLogEntry{}
			}
			if program == "" {
				return printJSON(cmd, entries)
			}

			results, err := jq.EvaluateValue(cmd.Context(), program, entries)
			if err != nil {
				return err
			}
			for _, r := range results {
				if err := printJSON(cmd, r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Action, "action", "", "Only invocations of this action")
	f.StringVar(&filter.CallerID, "caller", "", "Only invocations by this caller")
	f.StringVar(&status, "status", "", "success, error or timeout")
	f.StringVar(&since, "since", "", "RFC 3339 lower bound, inclusive")
	f.StringVar(&until, "until", "", "RFC 3339 upper bound, exclusive")
	f.IntVar(&filter.Limit, "limit", store.DefaultQueryLimit, "Maximum entries")
	f.StringVar(&program, "jq", "", "jq program applied to the array of entries")
	return cmd
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be RFC 3339: %w", name, err)
	}
	return t, nil
}
