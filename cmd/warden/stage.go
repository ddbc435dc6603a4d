package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Manage the staging grace window for newly observed files",
	}

	cmd.AddCommand(stageObserveCmd())
	cmd.AddCommand(stageWithdrawCmd())
	cmd.AddCommand(stageTickCmd())

	return cmd
}

func stageObserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "observe <path>...",
		Short: "Stage files as pending, starting their grace window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			for _, path := range args {
				if err := a.scheduler.Observe(ctx, path, now); err != nil {
					return err
				}
			}

			fmt.Printf("Staged %d files.\n", len(args))
			return nil
		},
	}
}

func stageWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <path>...",
		Short: "Withdraw pending files from staging",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				if err := a.scheduler.Withdraw(ctx, path); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func stageTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Release pending files whose grace window has elapsed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			released, err := a.scheduler.Tick(ctx, time.Now())
			if err != nil {
				return err
			}
			if len(released) == 0 {
				fmt.Println("Nothing due for release.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Path", "Discovered", "State"})
			for _, file := range released {
				t.AppendRow(table.Row{
					file.Path,
					file.DiscoveredAt.Local().Format(time.RFC3339),
					file.State,
				})
			}
			t.Render()

			return nil
		},
	}
}
