package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DCArch/tpchmark/pkg/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded benchmark runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if !cfg.History.Enabled {
			return fmt.Errorf("history is not enabled in the configuration")
		}

		hist := store.NewStore(log, &cfg.History.Database)

		if err := hist.Start(cmd.Context()); err != nil {
			return fmt.Errorf("starting history store: %w", err)
		}

		defer func() {
			if err := hist.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop history store")
			}
		}()

		runs, err := hist.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No recorded runs.")

			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tQUERIES\tOK\tFAILED\tTOTAL TIME\tREPORT")

		for _, run := range runs {
			status := fmt.Sprintf("%.2fs", run.TotalTime)
			if run.Interrupted {
				status += " (interrupted)"
			}

			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
				run.ID,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Queries,
				run.Succeeded,
				run.Failed,
				status,
				run.ReportPath,
			)
		}

		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")

	rootCmd.AddCommand(historyCmd)
}
