package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorebind/chronicle/internal/planner"
	"github.com/lorebind/chronicle/internal/store"
)

var (
	jobWorkID     string
	jobType       string
	jobUserID     string
	jobMaxRetries int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create and inspect jobs",
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job for a work's content units",
	Long: `Create a job over the content units of a work. The batch plan is
computed once, stored on the job, and never recomputed.

Analysis jobs group consecutive units up to the configured size budget;
translation jobs get one unit per batch so a failure is isolated to a
single chapter.

Examples:
  chronicle jobs create --work w1 --type analyze
  chronicle jobs create --work w1 --type translate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		units, err := d.store.UnitsByWork(jobWorkID)
		if err != nil {
			return err
		}
		plannable := planner.FromContent(units)

		var plan store.BatchPlan
		var jt store.JobType
		switch jobType {
		case "analyze":
			jt = store.JobTypeAnalyze
			plan, err = planner.Plan(plannable, d.cfg.Planner.BatchChars)
		case "translate":
			jt = store.JobTypeTranslate
			plan, err = planner.PerUnit(plannable)
		default:
			return fmt.Errorf("unknown job type %q (want analyze or translate)", jobType)
		}
		if err != nil {
			return err
		}

		maxRetries := jobMaxRetries
		if maxRetries <= 0 {
			maxRetries = d.cfg.Planner.MaxRetries
		}
		job, err := d.ledger.Create(jobWorkID, jobUserID, jt, plan, maxRetries)
		if err != nil {
			return err
		}

		fmt.Printf("created job %s: %d units in %d batches\n",
			job.ID, plan.TotalUnits(), len(plan))
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		var jobs []store.Job
		if err := d.store.DB().Order("created_at DESC").Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("no jobs")
			return nil
		}

		fmt.Printf("%-36s  %-12s  %-9s  %-11s  %-9s  %s\n",
			"ID", "WORK", "TYPE", "STATUS", "PROGRESS", "RETRIES")
		for _, j := range jobs {
			fmt.Printf("%-36s  %-12s  %-9s  %-11s  %3d/%-5d  %d/%d\n",
				j.ID, j.WorkID, j.Type, j.Status,
				j.CurrentBatchIndex, len(j.BatchPlan),
				j.RetryCount, j.MaxRetries)
		}
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show detailed status for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		job, err := d.ledger.Reload(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Job:     %s\n", job.ID)
		fmt.Printf("Work:    %s\n", job.WorkID)
		fmt.Printf("Type:    %s\n", job.Type)
		fmt.Printf("Status:  %s\n", job.Status)
		fmt.Printf("Batches: %d of %d (%d units total)\n",
			job.CurrentBatchIndex, len(job.BatchPlan), job.BatchPlan.TotalUnits())
		fmt.Printf("Retries: %d of %d\n", job.RetryCount, job.MaxRetries)
		if job.LockedAt != nil {
			fmt.Printf("Lease:   held since %s\n", job.LockedAt.Format("2006-01-02 15:04:05"))
		}
		if job.LastError != "" {
			fmt.Printf("Last error (%s): %s\n", job.LastError, job.ErrorMessage)
		}

		// Surface which units failed and why, for selective retry.
		var failed []store.ContentUnit
		err = d.store.DB().
			Where("work_id = ? AND status = ?", job.WorkID, store.UnitFailed).
			Order("seq_num").
			Find(&failed).Error
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			fmt.Printf("\nFailed units:\n")
			for _, u := range failed {
				fmt.Printf("  #%d %s: %s\n", u.SeqNum, u.Title, u.FailReason)
			}
		}
		return nil
	},
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Request a cooperative pause",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		if err := d.ledger.Pause(args[0]); err != nil {
			return err
		}
		fmt.Println("pause requested; the worker honors it at the next unit boundary")
		return nil
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		if err := d.ledger.Resume(args[0]); err != nil {
			return err
		}
		fmt.Println("job resumed from its persisted cursor")
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job (terminal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		if err := d.ledger.Cancel(args[0]); err != nil {
			return err
		}
		fmt.Println("job cancelled")
		return nil
	},
}

func init() {
	jobsCreateCmd.Flags().StringVar(&jobWorkID, "work", "", "work ID (required)")
	jobsCreateCmd.Flags().StringVar(&jobType, "type", "analyze", "job type: analyze or translate")
	jobsCreateCmd.Flags().StringVar(&jobUserID, "user", "", "owning user ID")
	jobsCreateCmd.Flags().IntVar(&jobMaxRetries, "max-retries", 0, "job retry budget (default from config)")
	jobsCreateCmd.MarkFlagRequired("work")

	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsPauseCmd)
	jobsCmd.AddCommand(jobsResumeCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
}
