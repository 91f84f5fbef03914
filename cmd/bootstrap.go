package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hts/internal/reconcile"
)

var (
	bootstrapRun      runFlags
	bootstrapNumSeeds int
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Reconcile repeatedly under varied random seeds",
	Long:  "Runs the reconciliation pipeline once per seed and stacks the results, tagged by a seed column, for stability analysis of interval and sample estimates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, pipeline, err := bootstrapRun.buildRequest(cmd)
		if err != nil {
			return err
		}

		engine, err := reconcile.New(pipeline...)
		if err != nil {
			return err
		}

		res, err := engine.BootstrapReconcile(cmd.Context(), *req, bootstrapNumSeeds)
		if err != nil {
			return eris.Wrap(err, "bootstrap reconcile")
		}

		zap.L().Info("bootstrap reconciliation complete",
			zap.String("run_id", res.RunID),
			zap.Int("seeds", bootstrapNumSeeds),
			zap.Int("rows", res.Forecasts.Len()),
		)

		return writeResult(res, bootstrapRun.out)
	},
}

func init() {
	bootstrapRun.register(bootstrapCmd)
	bootstrapCmd.Flags().IntVar(&bootstrapNumSeeds, "num-seeds", 10, "number of seeds to run")
	rootCmd.AddCommand(bootstrapCmd)
}
