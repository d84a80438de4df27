package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/elemgraph/internal/graph"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
)

var jobsJSON bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect tracked jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the current user's jobs",
	Long: `List job details recorded by the graph's job tracker. Only persistent
job caches (bolt, redis, sqlite, postgres) outlive a single command.`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

func init() {
	jobsListCmd.Flags().BoolVar(&jobsJSON, "json", false, "print job details as JSON")
	jobsCmd.AddCommand(jobsListCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	g, err := graph.FromConfig(cmd.Context(), cfg, baseLogger())
	if err != nil {
		return err
	}
	defer g.Close()

	out, err := g.ExecuteOperation(cmd.Context(), &operation.GetAllJobDetails{}, currentUser())
	if err != nil {
		return err
	}
	details := out.([]jobs.JobDetail)
	if jobsJSON {
		return render(cmd.OutOrStdout(), details)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tSTATUS\tSTARTED\tDURATION\tPARENT")
	for _, d := range details {
		duration := "-"
		if d.EndTime != nil {
			duration = d.EndTime.Sub(d.StartTime).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.JobID, d.Status, d.StartTime.Format(time.RFC3339), duration, d.ParentJobID)
	}
	return w.Flush()
}
