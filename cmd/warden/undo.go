package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func undoCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "undo [id]",
		Short: "Undo one operation by id, or everything since a time window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(args) == 0 && since == "" {
				return fmt.Errorf("provide an operation id or --since")
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				id, parseErr := strconv.ParseInt(args[0], 10, 64)
				if parseErr != nil {
					return fmt.Errorf("invalid operation id %q: %w", args[0], parseErr)
				}

				record, undoErr := a.engine.Undo(ctx, id)
				if undoErr != nil {
					return undoErr
				}
				fmt.Printf("Operation %d: %s (restored %s)\n", record.ID, record.Status, record.OriginalPath)
				return nil
			}

			start, err := parseSince(since)
			if err != nil {
				return err
			}

			result, err := a.engine.UndoSince(ctx, start)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Status", "Undone", "Error"})
			for _, outcome := range result.Outcomes {
				t.AppendRow(table.Row{outcome.RecordID, outcome.Status, outcome.Undone, outcome.Error})
			}
			t.Render()

			fmt.Printf("Undone %d, failed %d, skipped %d\n", result.Undone, result.Failed, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "undo all active operations within this window (e.g. 1h)")

	return cmd
}
