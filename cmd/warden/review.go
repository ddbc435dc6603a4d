package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the review queue",
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewConfirmCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List candidates awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.engine.GetPendingReview(ctx)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("Review queue is empty.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Source", "Proposed", "Category", "Confidence", "Queued"})
			for _, item := range items {
				t.AppendRow(table.Row{
					item.ID,
					item.Candidate.SourcePath,
					item.Candidate.ProposedPath,
					item.Candidate.Category,
					fmt.Sprintf("%.2f", item.Confidence),
					item.QueuedAt.Format("2006-01-02 15:04"),
				})
			}
			t.Render()

			return nil
		},
	}
}

func reviewConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <id> <category>",
		Short: "Resolve a review item with the chosen category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid review id %q: %w", args[0], err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.ConfirmReview(ctx, id, args[1])
			if err != nil {
				return err
			}

			switch {
			case result.Record != nil:
				fmt.Printf("Confirmed: moved to %s (operation %d)\n", result.Record.NewPath, result.Record.ID)
			default:
				fmt.Println("Confirmed: correction recorded, move skipped (category changed).")
			}

			return nil
		},
	}
}
