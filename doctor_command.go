package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"webpconv/decoder"
	"webpconv/success"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check decoder tools, directories and the history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := decoder.CheckTools(cfg.Decoder)
			rows := make([][]string, 0, len(statuses)+1)
			missing := 0
			for _, s := range statuses {
				state := "ok"
				if !s.Available {
					state = "missing"
					missing++
				}
				rows = append(rows, []string{s.Name, s.Command, state, s.Detail, s.Description})
			}

			storeState, storeDetail := "ok", cfg.SuccessDBPath()
			if closeHistory, err := openHistory(cfg); err != nil {
				storeState, storeDetail = "error", err.Error()
			} else {
				if err := success.CheckHealth(); err != nil {
					storeState, storeDetail = "error", err.Error()
				}
				closeHistory()
			}
			rows = append(rows, []string{"history", cfg.DataDir, storeState, storeDetail, "success and failure records"})

			fmt.Fprintln(out, renderTable([]string{"Check", "Location", "State", "Detail", "Purpose"}, rows, nil))
			fmt.Fprintf(out, "Workspace root: %s\n", cfg.TempRoot)
			fmt.Fprintf(out, "Frame sync: every %s, at most %s\n", cfg.PollInterval(), cfg.SyncTimeout())

			if missing > 0 {
				return fmt.Errorf("%d decoder tool(s) missing; animated input cannot be converted", missing)
			}
			return nil
		},
	}
}
