package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hts/internal/eval"
)

var (
	evalReconciled string
	evalActuals    string
	evalInsample   string
	evalHierarchy  string
	evalLevelCols  []string
	evalSeason     int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score reconciled forecasts against realized actuals",
	RunE: func(cmd *cobra.Command, args []string) error {
		reconciled, err := loadFrame(evalReconciled)
		if err != nil {
			return eris.Wrap(err, "load reconciled")
		}
		actuals, err := loadFrame(evalActuals)
		if err != nil {
			return eris.Wrap(err, "load actuals")
		}

		opts := eval.Options{Season: cfg.Eval.Season}
		if cmd.Flags().Changed("season") {
			opts.Season = evalSeason
		}
		if evalInsample != "" {
			if opts.Insample, err = loadFrame(evalInsample); err != nil {
				return eris.Wrap(err, "load insample")
			}
		}
		if evalHierarchy != "" {
			_, tags, err := loadHierarchy(evalHierarchy, evalLevelCols)
			if err != nil {
				return eris.Wrap(err, "load hierarchy")
			}
			opts.Tags = tags
		}

		report, err := eval.Evaluate(reconciled, actuals, opts)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}

		zap.L().Info("evaluation complete",
			zap.Int("groups", len(report.Groups)),
			zap.Int("rows", reconciled.Len()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalReconciled, "reconciled", "", "reconciled output file, CSV or XLSX (required)")
	evalCmd.Flags().StringVar(&evalActuals, "actuals", "", "realized actuals file (required)")
	evalCmd.Flags().StringVar(&evalInsample, "insample", "", "historical actuals for the MASE baseline")
	evalCmd.Flags().StringVar(&evalHierarchy, "hierarchy", "", "labels CSV to add per-level metric groups")
	evalCmd.Flags().StringSliceVar(&evalLevelCols, "level-columns", nil, "label columns to aggregate on (default: header order)")
	evalCmd.Flags().IntVar(&evalSeason, "season", 1, "seasonal lag of the MASE naive baseline")
	_ = evalCmd.MarkFlagRequired("reconciled")
	_ = evalCmd.MarkFlagRequired("actuals")
	rootCmd.AddCommand(evalCmd)
}
