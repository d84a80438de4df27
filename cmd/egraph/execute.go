package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/graph"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
)

var (
	chainFile string
	asJob     bool
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute a JSON operation chain",
	Long: `Execute an operation chain (or a single operation) read from a JSON file.

Examples:
  # Run a chain and print the result
  egraph execute --chain chain.json

  # Read the chain from stdin
  cat chain.json | egraph execute --chain -

  # Start the chain as a tracked job and print its job detail
  egraph execute --chain chain.json --job`,
	Args: cobra.NoArgs,
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().StringVar(&chainFile, "chain", "", "JSON operation chain file, or - for stdin")
	executeCmd.Flags().BoolVar(&asJob, "job", false, "run as a tracked job")
	executeCmd.MarkFlagRequired("chain")
}

func runExecute(cmd *cobra.Command, args []string) error {
	data, err := readChain(cmd.InOrStdin(), chainFile)
	if err != nil {
		return err
	}
	op, err := operation.Decode(data)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	g, err := graph.FromConfig(ctx, cfg, baseLogger())
	if err != nil {
		return err
	}
	defer g.Close()

	out := cmd.OutOrStdout()
	if asJob {
		d, err := g.ExecuteJob(ctx, op, currentUser())
		if err != nil {
			return err
		}
		// Closing the graph would cancel the job.
		if d, err = waitForJob(ctx, g, d.JobID); err != nil {
			return err
		}
		return render(out, d)
	}

	req := engine.NewRequest(currentUser())
	result, err := g.Run(ctx, op, req)
	if err != nil {
		return err
	}
	for _, f := range req.Failures() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: graph %s skipped for %s: %v\n", f.GraphID, f.Operation, f.Err)
	}
	return render(out, result)
}

func waitForJob(ctx context.Context, g *graph.Graph, jobID string) (jobs.JobDetail, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		out, err := g.ExecuteOperation(ctx, &operation.GetJobDetails{JobID: jobID}, currentUser())
		if err != nil {
			return jobs.JobDetail{}, err
		}
		if details := out.([]jobs.JobDetail); len(details) == 1 && details[0].Status.Terminal() {
			return details[0], nil
		}
		select {
		case <-ctx.Done():
			return jobs.JobDetail{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func readChain(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain: %w", err)
	}
	return data, nil
}

// render writes v as JSON, indented when out is a terminal. Sequences are
// written as arrays.
func render(out io.Writer, v any) error {
	if items, ok := operation.Collect(v); ok {
		if items == nil {
			items = []any{}
		}
		v = items
	}
	enc := json.NewEncoder(out)
	if isTerminal(out) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
