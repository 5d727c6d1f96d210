package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/brandpulse-backend/internal/analytics"
	"github.com/yungbote/brandpulse-backend/internal/client/brandapi"
)

func newReportCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report <batchExecutionID>",
		Short: "Print the analysis views of a completed batch",
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
			if exec.Status != brandapi.StatusCompleted {
				return fmt.Errorf("batch %s is %s; the report is available once it completes", exec.ID, exec.Status)
			}
			report, err := analytics.BuildReport(exec.FinalResults)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v*100) }

func printReport(w io.Writer, r *analytics.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if v := r.Visibility; v != nil {
		fmt.Fprintf(tw, "\nVISIBILITY  mention rate %s  share of voice %s\n", pct(v.OverallMentionRate), pct(v.ShareOfVoice))
		fmt.Fprintln(tw, "provider\tprompts\tmentions\trate\tavg position")
		for _, p := range v.Providers {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.2f\n", p.Provider, p.Prompts, p.Mentions, pct(p.MentionRate), p.AveragePosition)
		}
	}
	if s := r.Sentiment; s != nil {
		fmt.Fprintf(tw, "\nSENTIMENT  average %.2f (%s)\n", s.AverageScore, s.Label)
		fmt.Fprintln(tw, "provider\tresponses\tavg\tpositive\tneutral\tnegative")
		for _, p := range s.Providers {
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%d\t%d\t%d\n", p.Provider, p.Responses, p.AverageScore, p.Positive, p.Neutral, p.Negative)
		}
	}
	if c := r.Comparison; c != nil {
		fmt.Fprintf(tw, "\nCOMPARISON  win rate %s\n", pct(c.OverallWinRate))
		fmt.Fprintln(tw, "competitor\twins\tlosses\tties\twin rate")
		for _, comp := range c.Competitors {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", comp.Name, comp.Wins, comp.Losses, comp.Ties, pct(comp.WinRate))
		}
	}
	if a := r.Accuracy; a != nil {
		fmt.Fprintf(tw, "\nACCURACY  average %s\n", pct(a.AverageAccuracy))
		fmt.Fprintln(tw, "provider\tchecked\tmatched\taccuracy")
		for _, p := range a.Providers {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", p.Provider, p.Checked, p.Matched, pct(p.Accuracy))
		}
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(tw, "\nno results for: %s\n", strings.Join(r.Missing, ", "))
	}
}
