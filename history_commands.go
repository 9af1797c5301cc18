package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"webpconv/failures"
	"webpconv/success"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var showFailures bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			closeHistory, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer closeHistory()

			out := cmd.OutOrStdout()
			if showFailures {
				records, err := failures.ListFailures()
				if err != nil {
					return fmt.Errorf("list failures: %w", err)
				}
				if jsonOut {
					if records == nil {
						records = []failures.FailureRecord{}
					}
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(out, "No failed conversions recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{shortID(r.ID), r.Timestamp.Format(time.DateTime), r.Input, r.Kind, r.Error})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Time", "Input", "Kind", "Error"}, rows, nil))
				return nil
			}

			records, err := success.ListSuccessRecords()
			if err != nil {
				return fmt.Errorf("list conversions: %w", err)
			}
			if jsonOut {
				if records == nil {
					records = []success.SuccessRecord{}
				}
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No conversions recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					shortID(r.ID),
					r.Timestamp.Format(time.DateTime),
					r.Input,
					r.Output,
					r.Mode,
					strconv.Itoa(r.FrameCount),
					(time.Duration(r.DurationMs) * time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Time", "Input", "Output", "Mode", "Frames", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFailures, "failures", false, "List failed conversions instead")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print records as JSON")
	cmd.AddCommand(newHistoryDeleteCommand(ctx))
	return cmd
}

func newHistoryDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a success or failure record by its full job ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			closeHistory, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer closeHistory()

			id := args[0]
			rec, err := success.GetSuccess(id)
			if err != nil {
				return err
			}
			if rec != nil {
				if err := success.DeleteSuccess(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversion %s\n", id)
				return nil
			}
			failed, err := failures.GetFailure(id)
			if err != nil {
				return err
			}
			if failed == nil {
				return fmt.Errorf("no history record with id %s", id)
			}
			if err := failures.DeleteFailure(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted failure %s\n", id)
			return nil
		},
	}
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history records older than --max-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxAge <= 0 {
				return fmt.Errorf("--max-age must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			closeHistory, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer closeHistory()

			successes, err := success.CleanupOldRecords(maxAge)
			if err != nil {
				return err
			}
			failed, err := failures.CleanupOldRecords(maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d success and %d failure records older than %s\n", successes, failed, maxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "Age beyond which records are deleted")
	return cmd
}

// shortID keeps the first block of a UUID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
