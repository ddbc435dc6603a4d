package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and maintain learned placement patterns",
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsCompactCmd())

	return cmd
}

func patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned pattern entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.storage.GetPatternEntries(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No patterns learned yet.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Feature", "Category", "Confirmed", "Observed", "Ratio", "Updated"})
			for _, entry := range entries {
				if !entry.Valid() {
					t.AppendRow(table.Row{entry.FeatureKey, entry.Category, "-", "-", "corrupt", "-"})
					continue
				}
				t.AppendRow(table.Row{
					entry.FeatureKey,
					entry.Category,
					entry.ConfirmationCount,
					entry.ObservationCount,
					fmt.Sprintf("%.2f", entry.Ratio()),
					entry.LastUpdated.Local().Format(time.RFC3339),
				})
			}
			t.Render()

			return nil
		},
	}
}

func patternsCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Prune pattern entries that decayed below the relevance floor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pruned, err := a.updater.Compact(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d pattern entries.\n", pruned)
			return nil
		},
	}
}
