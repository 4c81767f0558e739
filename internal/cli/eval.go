package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yxzhu/wubiq/internal/label"
)

var (
	evalStrategy   string
	evalWorkers    int
	evalSaveFailed string
)

// evalCmd represents the eval command
var evalCmd = &cobra.Command{
	Use:   "eval <dir>",
	Short: "Score recognizers against labeled fixtures",
	Long: `Eval runs every configured recognizer over the labeled images in a
directory and reports per-recognizer and consensus accuracy. Labels come
from filenames: the last 4-digit run of the stem is the ground truth.

Example:
  wubiq eval ./corpus
  wubiq eval ./corpus --save-failed ./corpus/failed`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVar(&evalStrategy, "strategy", "", "consensus strategy (default from config)")
	evalCmd.Flags().IntVar(&evalWorkers, "workers", 0, "parallel workers (default from config)")
	evalCmd.Flags().StringVar(&evalSaveFailed, "save-failed", "", "copy consensus misses into this directory")
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg.Consensus.Strategy, evalStrategy, cfg.Consensus.HighConfidence)
	if err != nil {
		return err
	}
	workers := evalWorkers
	if workers <= 0 {
		workers = cfg.Concurrency.Workers
	}

	st, recognizers, err := openRecognizers(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if len(recognizers) == 0 {
		return fmt.Errorf("no recognizer available: seed the template library or enable the classifier")
	}

	e := label.NewEvaluator(recognizers, engine, workers, evalSaveFailed, traceWriter(cfg))
	report, err := e.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if cfg.Output.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Fixtures: %d labeled", report.Total)
	if report.Unlabeled > 0 {
		fmt.Printf(" (%d unlabeled skipped)", report.Unlabeled)
	}
	if report.Unreadable > 0 {
		fmt.Printf(" (%d unreadable)", report.Unreadable)
	}
	fmt.Println()

	names := make([]string, 0, len(report.Recognizers))
	for name := range report.Recognizers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := report.Recognizers[name]
		fmt.Printf("  %-10s %5.1f%%  (%d right, %d wrong, %d errored)\n",
			name, s.Accuracy()*100, s.Correct, s.Wrong, s.Errored)
	}
	fmt.Printf("  %-10s %5.1f%%  (%d right, %d wrong)\n",
		"consensus", report.Consensus.Accuracy()*100, report.Consensus.Correct, report.Consensus.Wrong)

	if len(report.Mismatches) > 0 {
		fmt.Println("Misses:")
		for _, m := range report.Mismatches {
			fmt.Printf("  %s: want %s, got %s\n", m.Path, m.Want, m.Final)
		}
	}
	return nil
}
