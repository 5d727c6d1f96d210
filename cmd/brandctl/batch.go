package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yungbote/brandpulse-backend/internal/client/brandapi"
)

func newBatchCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Start and poll batch executions",
	}
	cmd.AddCommand(
		newBatchStartCmd(root),
		newBatchStatusCmd(root),
		newBatchWaitCmd(root),
		newBatchRunCmd(root),
	)
	return cmd
}

func addStartFlags(cmd *cobra.Command, opts *brandapi.StartOptions) {
	cmd.Flags().StringSliceVar(&opts.Pipelines, "pipeline", nil, "pipelines to run (default all)")
	cmd.Flags().StringSliceVar(&opts.Providers, "provider", nil, "providers to query (default project or server set)")
}

func newBatchStartCmd(root *rootOptions) *cobra.Command {
	var opts brandapi.StartOptions
	cmd := &cobra.Command{
		Use:   "start <projectID>",
		Short: "Start a batch execution for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			res, err := c.StartBatch(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.AlreadyRunning {
				fmt.Fprintf(out, "already running: %s\n", res.BatchExecutionID)
				return nil
			}
			fmt.Fprintf(out, "started: %s\n", res.BatchExecutionID)
			return nil
		},
	}
	addStartFlags(cmd, &opts)
	return cmd
}

func newBatchStatusCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <batchExecutionID>",
		Short: "Show the current state of a batch execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			exec, err := c.GetBatchExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), exec)
			}
			printExecution(cmd.OutOrStdout(), exec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func newBatchWaitCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <batchExecutionID>",
		Short: "Poll a batch execution until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			exec, err := c.WaitForCompletion(cmd.Context(), args[0])
			if exec != nil {
				printExecution(cmd.OutOrStdout(), exec)
			}
			return err
		},
	}
}

func newBatchRunCmd(root *rootOptions) *cobra.Command {
	var (
		opts   brandapi.StartOptions
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run <projectID>",
		Short: "Start a batch, wait for it and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			report, exec, err := c.RunBatch(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printExecution(cmd.OutOrStdout(), exec)
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	addStartFlags(cmd, &opts)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printExecution(w io.Writer, exec *brandapi.BatchExecution) {
	fmt.Fprintf(w, "batch %s  project %s\n", exec.ID, exec.ProjectID)
	fmt.Fprintf(w, "  status:   %s", exec.Status)
	if exec.Stage != "" {
		fmt.Fprintf(w, " (%s)", exec.Stage)
	}
	fmt.Fprintf(w, "\n  progress: %d%%\n", exec.Progress)
	if exec.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", exec.Error)
	}
	if exec.Status == brandapi.StatusCompleted {
		fmt.Fprintf(w, "  results:  %d\n", len(exec.FinalResults))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
