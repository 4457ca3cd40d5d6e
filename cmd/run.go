// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/observability"
	"github.com/xkilldash9x/aerialguide/internal/runner"
	"github.com/xkilldash9x/aerialguide/internal/scenario"
)

func newRunCmd() *cobra.Command {
	var (
		scenarioPath string
		refine       bool
		ticks        int
		seed         int64
		unpaced      bool
		testMode     bool
		asJSON       bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replays a scenario until guidance settles and prints the prescription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("run")

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("refine") {
				cfg.SetGuidanceRefineAfterBuild(refine)
			}
			if cmd.Flags().Changed("ticks") {
				cfg.SetRunnerMaxTicks(ticks)
			}
			if cmd.Flags().Changed("seed") {
				cfg.SetGuidanceSeed(seed)
			}
			if cmd.Flags().Changed("test-mode") {
				cfg.SetGuidanceTestMode(testMode)
			}
			if unpaced {
				cfg.SetRunnerTicksPerSecond(0)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			sc, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
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

			out, err := runner.New(cfg.Runner(), settings, logger, p.sinks...).Replay(ctx, sc)
			if err != nil {
				return err
			}
			if err := p.persist(ctx, out); err != nil {
				logger.Error("Failed to persist session summary", zap.Error(err))
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return writeOutcome(cmd.OutOrStdout(), out)
		},
	}

	runCmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (JSON)")
	runCmd.Flags().BoolVar(&refine, "refine", false, "run an annealing pass after the build cycle")
	runCmd.Flags().IntVar(&ticks, "ticks", 0, "tick budget (overrides runner.max_ticks)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed for the refinement search")
	runCmd.Flags().BoolVar(&unpaced, "unpaced", false, "tick as fast as possible")
	runCmd.Flags().BoolVar(&testMode, "test-mode", false, "cap the prescription at 16 images")
	runCmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	_ = runCmd.MarkFlagRequired("scenario")
	return runCmd
}
