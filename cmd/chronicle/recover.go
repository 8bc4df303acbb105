package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorebind/chronicle/internal/recovery"
)

var recoverWorkID string

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Detect and resolve stuck content units",
	Long: `Inspect units that have sat in progress past the staleness threshold,
typically abandoned by a crashed or timed-out worker.

"reset" returns a unit to pending keeping its mid-unit checkpoint, so
translation resumes at the last completed chunk. "clear" also discards
the checkpoint and restarts the unit from scratch.`,
}

var recoverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stuck units",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		det := recovery.New(d.store, d.cfg.Worker.StuckThreshold, d.logger)
		stuck, err := det.ListStuck(recoverWorkID)
		if err != nil {
			return err
		}
		if len(stuck) == 0 {
			fmt.Println("no stuck units")
			return nil
		}

		fmt.Printf("%-36s  %-12s  %-4s  %-9s  %-10s  %s\n",
			"UNIT", "WORK", "SEQ", "PROGRESS", "CHECKPOINT", "LAST UPDATE")
		for _, s := range stuck {
			checkpoint := "-"
			if s.HasPartialOutput {
				checkpoint = "yes"
			}
			fmt.Printf("%-36s  %-12s  %-4d  %7d%%  %-10s  %s\n",
				s.UnitID, s.WorkID, s.SeqNum, s.ProgressPercent, checkpoint,
				s.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var recoverResetCmd = &cobra.Command{
	Use:   "reset <unit-id>",
	Short: "Reset a stuck unit, keeping its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		det := recovery.New(d.store, d.cfg.Worker.StuckThreshold, d.logger)
		if err := det.Reset(args[0]); err != nil {
			return err
		}
		fmt.Println("unit reset; translation resumes from its last completed chunk")
		return nil
	},
}

var recoverClearCmd = &cobra.Command{
	Use:   "clear <unit-id>",
	Short: "Reset a stuck unit and discard its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		det := recovery.New(d.store, d.cfg.Worker.StuckThreshold, d.logger)
		if err := det.Clear(args[0]); err != nil {
			return err
		}
		fmt.Println("unit cleared; it restarts from scratch")
		return nil
	},
}

func init() {
	recoverListCmd.Flags().StringVar(&recoverWorkID, "work", "", "limit to one work")

	recoverCmd.AddCommand(recoverListCmd)
	recoverCmd.AddCommand(recoverResetCmd)
	recoverCmd.AddCommand(recoverClearCmd)
}
