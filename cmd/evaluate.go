// File: cmd/evaluate.go
package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/observability"
	"github.com/xkilldash9x/aerialguide/internal/runner"
	"github.com/xkilldash9x/aerialguide/internal/scenario"
)

func newEvaluateCmd() *cobra.Command {
	var (
		concurrency int
		asJSON      bool
	)

	evalCmd := &cobra.Command{
		Use:   "evaluate [scenario files...]",
		Short: "Replays several scenarios concurrently and prints one line per scenario",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("evaluate")

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.SetRunnerConcurrency(concurrency)
			}
			// Evaluation never needs display pacing.
			cfg.SetRunnerTicksPerSecond(0)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			scenarios := make([]*scenario.Scenario, 0, len(args))
			for _, path := range args {
				sc, err := scenario.Load(path)
				if err != nil {
					return err
				}
				scenarios = append(scenarios, sc)
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}

			p, err := openPersistence(ctx, cfg.Store(), logger)
			if err != nil {
				return err
			}
			defer p.Close()

			outcomes, evalErr := runner.New(cfg.Runner(), settings, logger, p.sinks...).Evaluate(ctx, scenarios)
			var persistErr error
			for _, out := range outcomes {
				if out.Summary.Session == "" {
					continue
				}
				persistErr = errors.Join(persistErr, p.persist(ctx, out))
			}
			if persistErr != nil {
				logger.Error("Failed to persist session summaries", zap.Error(persistErr))
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), outcomes); err != nil {
					return err
				}
				return evalErr
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENARIO\tTICKS\tDONE\tPRESCRIBED\tSELECTED\tJOINT\tPRESCRIBED Q\tATTACKS")
			for _, out := range outcomes {
				s := out.Summary.Stats
				fmt.Fprintf(tw, "%s\t%d\t%t\t%d\t%d\t%.4f\t%.4f\t%d/%d\n",
					out.Scenario, out.Result.Ticks, out.Result.Completed,
					s.Prescribed, s.Selected, s.JointQuality, s.PrescribedQuality,
					s.AttacksCovered, s.Attacks)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return evalErr
		},
	}

	evalCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "scenarios replayed at once (overrides runner.concurrency)")
	evalCmd.Flags().BoolVar(&asJSON, "json", false, "print the outcomes as JSON")
	return evalCmd
}
