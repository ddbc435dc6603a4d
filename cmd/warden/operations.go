package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
)

func operationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operations",
		Short: "Inspect the operation log",
	}

	cmd.AddCommand(operationsListCmd())
	cmd.AddCommand(operationsSearchCmd())
	cmd.AddCommand(operationsReconcileCmd())

	return cmd
}

func operationsListCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent operations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			start, err := parseSince(since)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.engine.ListRecentOperations(ctx, start)
			if err != nil {
				return err
			}

			renderOperations(records)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "24h", "how far back to list")

	return cmd
}

func operationsSearchCmd() *cobra.Command {
	var (
		pathContains  string
		minConfidence float64
		maxConfidence float64
		since         string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the operation log for targeted recovery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			query := service.OperationQuery{
				PathContains: pathContains,
				Limit:        limit,
			}
			if cmd.Flags().Changed("min-confidence") {
				query.MinConfidence = &minConfidence
			}
			if cmd.Flags().Changed("max-confidence") {
				query.MaxConfidence = &maxConfidence
			}
			if since != "" {
				start, err := parseSince(since)
				if err != nil {
					return err
				}
				query.Start = &start
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.engine.Search(ctx, query)
			if err != nil {
				return err
			}

			renderOperations(records)
			return nil
		},
	}

	cmd.Flags().StringVar(&pathContains, "path", "", "path substring to match")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum confidence")
	cmd.Flags().Float64Var(&maxConfidence, "max-confidence", 1, "maximum confidence")
	cmd.Flags().StringVar(&since, "since", "", "how far back to search")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")

	return cmd
}

func operationsReconcileCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report stale intent records left by a crash",
		Long: `Lists INTENT records older than the cutoff. These mark mutations that
may have happened without being committed to the log; resolve them by
inspecting the filesystem, never automatically.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cutoff, err := parseSince(olderThan)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.engine.Reconcile(ctx, cutoff)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No stale intents found.")
				return nil
			}

			renderOperations(records)
			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "1h", "intent age before it counts as stale")

	return cmd
}

func renderOperations(records []model.OperationRecord) {
	if len(records) == 0 {
		fmt.Println("No operations found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "From", "To", "Status", "Confidence", "Executed"})
	for _, record := range records {
		t.AppendRow(table.Row{
			record.ID,
			record.OriginalPath,
			record.NewPath,
			record.Status,
			fmt.Sprintf("%.2f", record.Confidence),
			record.ExecutedAt.Local().Format(time.RFC3339),
		})
	}
	t.Render()
}
