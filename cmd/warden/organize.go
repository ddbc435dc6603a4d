package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
)

func organizeCmd() *cobra.Command {
	var candidatesFile string

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Run candidate actions through the confidence gate",
		Long: `Reads a JSON array of candidate actions (produced by the external
classifier collaborators) and routes each one: auto-execute, queue for
review, or reject.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			candidates, err := loadCandidates(candidatesFile)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("No candidates to process.")
				return nil
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			bar := progressbar.Default(int64(len(candidates)), "organizing")

			counts := make(map[service.Outcome]int)
			for _, candidate := range candidates {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				result, err := a.engine.ProposeAndMaybeExecute(ctx, candidate)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %s: %v\n", candidate.SourcePath, err)
					counts["error"]++
				} else {
					counts[result.Outcome]++
				}
				_ = bar.Add(1)
			}

			fmt.Printf("\nProcessed %d candidates: %d executed, %d queued for review, %d rejected, %d duplicates, %d errors\n",
				len(candidates),
				counts[service.OutcomeExecuted],
				counts[service.OutcomeQueued],
				counts[service.OutcomeRejected],
				counts[service.OutcomeDuplicate],
				counts["error"])

			return nil
		},
	}

	cmd.Flags().StringVarP(&candidatesFile, "file", "f", "-", "candidate actions JSON file (- for stdin)")

	return cmd
}

func loadCandidates(path string) ([]model.CandidateAction, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open candidates file: %w", err)
		}
		defer func() { _ = f.Close() }()
		reader = f
	}

	var candidates []model.CandidateAction
	if err := json.NewDecoder(reader).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	return candidates, nil
}
