package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorebind/chronicle/internal/fallback"
	"github.com/lorebind/chronicle/internal/merge"
	"github.com/lorebind/chronicle/internal/worker"
)

var (
	workerInterval time.Duration
	workerBudget   time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker invocation",
	Long: `Run one worker invocation: lease the oldest eligible job, process the
batch under its cursor, and release the lease. Designed to be triggered
by an external scheduler (cron, systemd timer).

With --interval the command instead loops, emulating the periodic
trigger for environments without one.

Examples:
  chronicle worker                   # single invocation
  chronicle worker --budget 120s     # single invocation, tighter budget
  chronicle worker --interval 60s    # loop until interrupted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}

		targets := d.cfg.BuildTargets()
		if len(targets) == 0 {
			return fmt.Errorf("no enabled upstream targets configured")
		}

		strat := fallback.New(fallback.Config{
			Targets:             targets,
			BreakerThreshold:    d.cfg.Resilience.BreakerThreshold,
			BreakerResetTimeout: d.cfg.Resilience.BreakerResetTimeout,
			BaseDelay:           d.cfg.Resilience.BaseDelay,
			RateLimitDelay:      d.cfg.Resilience.RateLimitDelay,
			Logger:              d.logger,
		})

		budget := workerBudget
		if budget <= 0 {
			budget = d.cfg.Worker.Budget
		}

		runner := worker.New(d.store, d.ledger, strat, merge.New(d.store, d.logger), worker.Config{
			Budget:                budget,
			Fanout:                d.cfg.Worker.Fanout,
			AnalyzeBatchChars:     d.cfg.Planner.BatchChars,
			TranslateOutputTokens: d.cfg.Translation.OutputTokens,
		}, d.logger)

		if workerInterval > 0 {
			return runner.Run(cmd.Context(), workerInterval)
		}

		res, err := runner.Tick(cmd.Context())
		if err != nil {
			return err
		}
		if res.Idle {
			fmt.Println("no eligible jobs")
			return nil
		}
		fmt.Printf("job %s batch %d", res.JobID, res.BatchIndex)
		switch {
		case res.JobCompleted:
			fmt.Println(": job completed")
		case res.JobFailed:
			fmt.Println(": job permanently failed")
		case res.Interrupted:
			fmt.Println(": interrupted by pause/cancel")
		case res.Advanced:
			fmt.Println(": done")
		default:
			fmt.Println(": failed, will retry")
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().DurationVar(&workerInterval, "interval", 0, "loop with this tick interval instead of a single invocation")
	workerCmd.Flags().DurationVar(&workerBudget, "budget", 0, "wall-clock budget per invocation (default from config)")
}
