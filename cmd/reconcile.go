package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hts/internal/reconcile"
)

var reconcileRun runFlags

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile base forecasts across the hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, pipeline, err := reconcileRun.buildRequest(cmd)
		if err != nil {
			return err
		}

		engine, err := reconcile.New(pipeline...)
		if err != nil {
			return err
		}

		res, err := engine.Reconcile(cmd.Context(), *req)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		for key, d := range res.ExecutionTimes {
			zap.L().Info("method finished",
				zap.String("run_id", res.RunID),
				zap.String("method", key),
				zap.Duration("elapsed", d),
			)
		}
		zap.L().Info("reconciliation complete",
			zap.String("run_id", res.RunID),
			zap.Int("rows", res.Forecasts.Len()),
			zap.Int("columns", len(res.Forecasts.Columns())),
		)

		return writeResult(res, reconcileRun.out)
	},
}

func init() {
	reconcileRun.register(reconcileCmd)
	rootCmd.AddCommand(reconcileCmd)
}
